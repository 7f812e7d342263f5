package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN == "" {
		t.Error("MySQL DSN should not be empty")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.Nginx.CustomSSLDir != "/data/custom_ssl" {
		t.Errorf("Expected custom ssl dir under /data, got %s", cfg.Nginx.CustomSSLDir)
	}
	if cfg.Renewal.Interval() != time.Hour {
		t.Errorf("Expected 1h renewal interval, got %s", cfg.Renewal.Interval())
	}
	if cfg.Renewal.LeadTime() != 30*24*time.Hour {
		t.Errorf("Expected 30 day lead time, got %s", cfg.Renewal.LeadTime())
	}
	if cfg.ACME.SettleDelay() != 5*time.Second {
		t.Errorf("Expected 5s settle delay, got %s", cfg.ACME.SettleDelay())
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"mysql dsn", "MYSQL_DSN"},
		{"jwt secret", "JWT_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")
			if _, err := Load(); err == nil {
				t.Errorf("Expected error when %s is missing", tt.unset)
			}
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_PASS", "secret")
	t.Setenv("REDIS_DB", "5")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DATA_DIR", "/srv/npm")
	t.Setenv("RENEWAL_ENABLED", "0")
	t.Setenv("LE_STAGING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Redis.Addr != "redis.example.com:6379" {
		t.Errorf("Expected custom Redis addr, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.Password != "secret" {
		t.Errorf("Expected Redis password 'secret', got %s", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 5 {
		t.Errorf("Expected Redis DB 5, got %d", cfg.Redis.DB)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Expected HTTPAddr :9090, got %s", cfg.HTTPAddr)
	}
	if cfg.ACME.Webroot != "/srv/npm/letsencrypt-acme-challenge" {
		t.Errorf("Expected webroot under DATA_DIR, got %s", cfg.ACME.Webroot)
	}
	if cfg.Renewal.Enabled {
		t.Error("Expected renewal to be disabled")
	}
	if !cfg.ACME.Staging {
		t.Error("Expected staging to be enabled")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_FORMAT", "xml")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown log format")
	}
}

func TestLoadFromINI_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy_manager.ini")
	content := `[mysql]
dsn = ini:dsn@tcp(db:3306)/npm

[jwt]
secret = from-ini

[http]
addr = :7070

[renewal]
interval_sec = 600
lead_days = 14

[acme]
settle_delay_ms = 0
cert_prefix = pm
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := LoadFromINI(path)
	if err != nil {
		t.Fatalf("LoadFromINI() failed: %v", err)
	}

	if cfg.MySQL.DSN != "ini:dsn@tcp(db:3306)/npm" {
		t.Errorf("Expected DSN from INI, got %s", cfg.MySQL.DSN)
	}
	if cfg.JWT.Secret != "from-ini" {
		t.Errorf("Expected JWT secret from INI, got %s", cfg.JWT.Secret)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("Expected env to override INI, got %s", cfg.HTTPAddr)
	}
	if cfg.Renewal.Interval() != 10*time.Minute {
		t.Errorf("Expected 10m interval, got %s", cfg.Renewal.Interval())
	}
	if cfg.Renewal.LeadDays != 14 {
		t.Errorf("Expected 14 lead days, got %d", cfg.Renewal.LeadDays)
	}
	if cfg.ACME.SettleDelay() != 0 {
		t.Errorf("Expected zero settle delay, got %s", cfg.ACME.SettleDelay())
	}
	if cfg.ACME.CertPrefix != "pm" {
		t.Errorf("Expected cert prefix pm, got %s", cfg.ACME.CertPrefix)
	}
}

func TestLoadFromINI_MissingFile(t *testing.T) {
	if _, err := LoadFromINI(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Error("Expected error for missing INI file")
	}
}
