package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	v1 "proxy_manager/api/v1"
	"proxy_manager/api/v1/audit_log"
	"proxy_manager/api/v1/certificates"
	apihosts "proxy_manager/api/v1/hosts"
	"proxy_manager/api/v1/middleware"
	"proxy_manager/internal/access"
	"proxy_manager/internal/acme"
	"proxy_manager/internal/audit"
	"proxy_manager/internal/auth"
	"proxy_manager/internal/cache"
	"proxy_manager/internal/certificate"
	"proxy_manager/internal/config"
	"proxy_manager/internal/conflict"
	"proxy_manager/internal/db"
	"proxy_manager/internal/hosts"
	"proxy_manager/internal/logging"
	"proxy_manager/internal/nginx"
	"proxy_manager/internal/renewal"
	"proxy_manager/internal/shell"
	"proxy_manager/internal/store"
	"proxy_manager/internal/ws"
)

const shutdownTimeout = 30 * time.Second

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFromINI(path)
	}
	return config.Load()
}

func main() {
	// 1. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.Setup(logrus.StandardLogger(), cfg.Log, os.Stdout)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	logger.Info("Configuration loaded")
	base := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		logger.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.DB); err != nil {
			logger.Fatalf("Failed to migrate: %v", err)
		}
	}
	st := store.New(db.DB)

	// 3. Initialize Redis (optional)
	rdb, err := cache.Open(ctx, cfg.Redis, logging.Component(logger, "redis"))
	if err != nil {
		logger.Fatalf("Failed to initialize Redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 4. Engine
	sh := shell.NewExecRunner(base)
	authz := access.NewRoleAuthorizer()

	socket := ws.NewServer(st, logging.Component(logger, "ws"))
	auditOpts := []audit.Option{audit.WithBroadcaster(socket)}
	if rdb != nil {
		auditOpts = append(auditOpts, audit.WithPublisher(rdb))
	}
	recorder := audit.New(st, base, auditOpts...)

	reconciler, err := nginx.NewReconciler(nginx.Options{
		Bin:            cfg.Nginx.Bin,
		DataDir:        cfg.Nginx.DataDir,
		LetsEncryptDir: cfg.ACME.ConfigDir,
		CustomSSLDir:   cfg.Nginx.CustomSSLDir,
		CertPrefix:     cfg.ACME.CertPrefix,
		ACMEWebroot:    cfg.ACME.Webroot,
	}, sh, st, base)
	if err != nil {
		logger.Fatalf("Failed to initialize nginx reconciler: %v", err)
	}

	certbot := acme.NewCertbot(acme.Settings{
		Bin:            cfg.ACME.Bin,
		ConfigFile:     cfg.ACME.ConfigFile,
		ConfigDir:      cfg.ACME.ConfigDir,
		WorkDir:        cfg.ACME.WorkDir,
		LogsDir:        cfg.ACME.LogsDir,
		Webroot:        cfg.ACME.Webroot,
		CredentialsDir: cfg.ACME.CredentialsDir,
		CertPrefix:     cfg.ACME.CertPrefix,
		Staging:        cfg.ACME.Staging,
		Server:         cfg.ACME.Server,
		InstallPlugins: cfg.ACME.InstallPlugins,
		OpenSSLBin:     cfg.ACME.OpenSSLBin,
	}, sh, base)
	settings := certbot.Settings()

	resolver := conflict.NewResolver(st)
	certs := certificate.NewManager(certificate.Deps{
		Store:      st,
		Hosts:      resolver,
		Nginx:      reconciler,
		ACME:       certbot,
		Validator:  acme.NewOpenSSL(settings.OpenSSLBin, settings.TempDir, sh),
		Authorizer: authz,
		Audit:      recorder,
	}, certificate.Options{SettleDelay: cfg.ACME.SettleDelay()}, base)
	hostSvc := hosts.NewService(st, resolver, reconciler, certs, authz, recorder, base)

	tokens, err := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpireMinutes)*time.Minute)
	if err != nil {
		logger.Fatalf("Failed to initialize JWT: %v", err)
	}
	authSvc := auth.NewService(st, tokens, logging.Component(logger, "auth"))
	if err := authSvc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		logger.Fatalf("Failed to bootstrap admin user: %v", err)
	}

	scheduler := renewal.NewScheduler(st, certs, renewal.Config{
		Enabled:  cfg.Renewal.Enabled,
		Interval: cfg.Renewal.Interval(),
		LeadTime: cfg.Renewal.LeadTime(),
		Logger:   base,
	})
	scheduler.Start()
	defer scheduler.Stop()

	socket.Start()
	defer socket.Close()

	// 5. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logging.Component(logger, "http")))
	v1.SetupRouter(r, v1.Deps{
		Auth:         authSvc,
		Tokens:       tokens,
		Hosts:        apihosts.NewHandler(hostSvc, resolver),
		Certificates: certificates.NewHandler(certs),
		AuditLog:     audit_log.NewHandler(st, authz),
		Socket:       ws.WrapWithAuth(socket, tokens, authz, logging.Component(logger, "ws")),
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP shutdown failed")
	}
}
