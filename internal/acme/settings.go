package acme

import (
	"path/filepath"

	"proxy_manager/internal/model"
)

// Settings holds the certbot invocation settings
type Settings struct {
	Bin            string // Default: certbot
	ConfigFile     string // Default: /etc/letsencrypt.ini, empty disables --config
	ConfigDir      string // Default: /etc/letsencrypt
	WorkDir        string // Default: /tmp/letsencrypt-lib
	LogsDir        string // Default: /tmp/letsencrypt-log
	Webroot        string // Default: /data/letsencrypt-acme-challenge
	CredentialsDir string // Default: <ConfigDir>/credentials
	CertPrefix     string // Default: npm
	Staging        bool
	Server         string // custom ACME directory URL, ignored when Staging is set
	InstallPlugins bool   // pip install the DNS plugin before first use
	PipBin         string // Default: pip
	OpenSSLBin     string // Default: openssl
	TempDir        string // Default: os.TempDir()
}

func (s *Settings) setDefaults() {
	if s.Bin == "" {
		s.Bin = "certbot"
	}
	if s.ConfigDir == "" {
		s.ConfigDir = "/etc/letsencrypt"
	}
	if s.WorkDir == "" {
		s.WorkDir = "/tmp/letsencrypt-lib"
	}
	if s.LogsDir == "" {
		s.LogsDir = "/tmp/letsencrypt-log"
	}
	if s.Webroot == "" {
		s.Webroot = "/data/letsencrypt-acme-challenge"
	}
	if s.CredentialsDir == "" {
		s.CredentialsDir = filepath.Join(s.ConfigDir, "credentials")
	}
	if s.CertPrefix == "" {
		s.CertPrefix = "npm"
	}
	if s.PipBin == "" {
		s.PipBin = "pip"
	}
	if s.OpenSSLBin == "" {
		s.OpenSSLBin = "openssl"
	}
}

// LiveDir returns <config>/live/<prefix>-<id>
func (s *Settings) LiveDir(cert *model.Certificate) string {
	return filepath.Join(s.ConfigDir, "live", cert.CertName(s.CertPrefix))
}

// FullchainPath returns the issued chain certbot keeps for cert
func (s *Settings) FullchainPath(cert *model.Certificate) string {
	return filepath.Join(s.LiveDir(cert), "fullchain.pem")
}

// CredentialsPath returns the per-certificate DNS credentials file
func (s *Settings) CredentialsPath(cert *model.Certificate) string {
	return filepath.Join(s.CredentialsDir, "credentials-"+itoa(cert.ID))
}
