package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL    MySQLConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Nginx    NginxConfig
	ACME     ACMEConfig
	Renewal  RenewalConfig
	Admin    AdminConfig
	Migrate  bool
	HTTPAddr string
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration. An empty Addr disables audit
// publishing.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text or json
}

// NginxConfig holds the paths the reconciler writes to.
type NginxConfig struct {
	Bin          string
	DataDir      string
	CustomSSLDir string
}

// ACMEConfig holds certbot configuration
type ACMEConfig struct {
	Bin            string
	ConfigFile     string
	ConfigDir      string
	WorkDir        string
	LogsDir        string
	Webroot        string
	CredentialsDir string
	CertPrefix     string
	Staging        bool
	Server         string
	InstallPlugins bool
	OpenSSLBin     string
	SettleDelayMs  int
}

// SettleDelay is the pause between the challenge reload and the certbot run.
func (c ACMEConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// RenewalConfig holds renewal scheduler configuration
type RenewalConfig struct {
	Enabled     bool
	IntervalSec int
	LeadDays    int
}

// Interval returns the sweep interval.
func (c RenewalConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// LeadTime returns how far ahead of expiry a certificate is renewed.
func (c RenewalConfig) LeadTime() time.Duration {
	return time.Duration(c.LeadDays) * 24 * time.Hour
}

// AdminConfig holds the bootstrap administrator account. It is created on
// startup when no user with that name exists.
type AdminConfig struct {
	Username string
	Password string
}

// lookup resolves a single key. Priority: ENV > INI > default.
type lookup struct {
	file *ini.File
}

func (l lookup) str(envKey, section, key, def string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if l.file != nil {
		if value := l.file.Section(section).Key(key).String(); value != "" {
			return value
		}
	}
	return def
}

func (l lookup) int(envKey, section, key string, def int) int {
	if value := os.Getenv(envKey); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	if l.file != nil && l.file.Section(section).HasKey(key) {
		if value, err := l.file.Section(section).Key(key).Int(); err == nil {
			return value
		}
	}
	return def
}

func (l lookup) bool(envKey, section, key string, def bool) bool {
	if value := os.Getenv(envKey); value != "" {
		return value == "1" || value == "true"
	}
	if l.file != nil && l.file.Section(section).HasKey(key) {
		if value, err := l.file.Section(section).Key(key).Bool(); err == nil {
			return value
		}
	}
	return def
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
	return build(lookup{})
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	_ = godotenv.Load()

	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}
	return build(lookup{file: cfgFile})
}

func build(l lookup) (*Config, error) {
	dataDir := l.str("DATA_DIR", "nginx", "data_dir", "/data")

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: l.str("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     l.str("REDIS_ADDR", "redis", "addr", ""),
			Password: l.str("REDIS_PASS", "redis", "pass", ""),
			DB:       l.int("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        l.str("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: l.int("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        l.str("JWT_ISSUER", "jwt", "issuer", "proxy_manager"),
		},
		Log: LogConfig{
			Level:  l.str("LOG_LEVEL", "log", "level", "info"),
			Format: l.str("LOG_FORMAT", "log", "format", "text"),
		},
		Nginx: NginxConfig{
			Bin:          l.str("NGINX_BIN", "nginx", "bin", "nginx"),
			DataDir:      dataDir,
			CustomSSLDir: l.str("CUSTOM_SSL_DIR", "custom_ssl", "dir", dataDir+"/custom_ssl"),
		},
		ACME: ACMEConfig{
			Bin:            l.str("CERTBOT_BIN", "acme", "certbot_bin", "certbot"),
			ConfigFile:     l.str("CERTBOT_CONFIG_FILE", "acme", "config_file", "/etc/letsencrypt.ini"),
			ConfigDir:      l.str("LE_CONFIG_DIR", "acme", "config_dir", "/etc/letsencrypt"),
			WorkDir:        l.str("LE_WORK_DIR", "acme", "work_dir", "/tmp/letsencrypt-lib"),
			LogsDir:        l.str("LE_LOGS_DIR", "acme", "logs_dir", "/tmp/letsencrypt-log"),
			Webroot:        l.str("ACME_WEBROOT", "acme", "webroot", dataDir+"/letsencrypt-acme-challenge"),
			CredentialsDir: l.str("LE_CREDENTIALS_DIR", "acme", "credentials_dir", ""),
			CertPrefix:     l.str("CERT_PREFIX", "acme", "cert_prefix", "npm"),
			Staging:        l.bool("LE_STAGING", "acme", "staging", false),
			Server:         l.str("LE_SERVER", "acme", "server", ""),
			InstallPlugins: l.bool("CERTBOT_INSTALL_PLUGINS", "acme", "install_plugins", false),
			OpenSSLBin:     l.str("OPENSSL_BIN", "acme", "openssl_bin", "openssl"),
			SettleDelayMs:  l.int("ACME_SETTLE_DELAY_MS", "acme", "settle_delay_ms", 5000),
		},
		Renewal: RenewalConfig{
			Enabled:     l.bool("RENEWAL_ENABLED", "renewal", "enabled", true),
			IntervalSec: l.int("RENEWAL_INTERVAL_SEC", "renewal", "interval_sec", 3600),
			LeadDays:    l.int("RENEWAL_LEAD_DAYS", "renewal", "lead_days", 30),
		},
		Admin: AdminConfig{
			Username: l.str("ADMIN_USERNAME", "admin", "username", "admin"),
			Password: l.str("ADMIN_PASSWORD", "admin", "password", ""),
		},
		Migrate:  l.bool("MIGRATE", "app", "migrate", false),
		HTTPAddr: l.str("HTTP_ADDR", "http", "addr", ":8080"),
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Renewal.Enabled && (cfg.Renewal.IntervalSec <= 0 || cfg.Renewal.LeadDays <= 0) {
		return nil, fmt.Errorf("RENEWAL_INTERVAL_SEC and RENEWAL_LEAD_DAYS must be positive")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.Log.Format)
	}

	return cfg, nil
}
