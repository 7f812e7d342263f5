package nginx

import (
	"fmt"
	"path/filepath"

	"proxy_manager/internal/model"
)

// ErrSuffix marks a config rejected by nginx -t
const ErrSuffix = ".err"

// Options holds the directories the reconciler renders into and reads from
type Options struct {
	Bin            string // Default: nginx
	DataDir        string // Default: /data
	LetsEncryptDir string // Default: /etc/letsencrypt
	CustomSSLDir   string // Default: /data/custom_ssl
	CertPrefix     string // Default: npm
	ACMEWebroot    string // Default: /data/letsencrypt-acme-challenge
}

func (o *Options) setDefaults() {
	if o.Bin == "" {
		o.Bin = "nginx"
	}
	if o.DataDir == "" {
		o.DataDir = "/data"
	}
	if o.LetsEncryptDir == "" {
		o.LetsEncryptDir = "/etc/letsencrypt"
	}
	if o.CustomSSLDir == "" {
		o.CustomSSLDir = filepath.Join(o.DataDir, "custom_ssl")
	}
	if o.CertPrefix == "" {
		o.CertPrefix = "npm"
	}
	if o.ACMEWebroot == "" {
		o.ACMEWebroot = filepath.Join(o.DataDir, "letsencrypt-acme-challenge")
	}
}

// ConfigPath returns <data>/nginx/<host_type>/<id>.conf
func (o *Options) ConfigPath(t model.HostType, id int) string {
	return filepath.Join(o.DataDir, "nginx", string(t), fmt.Sprintf("%d.conf", id))
}

// ErrorPath returns the rejected-config sibling of ConfigPath
func (o *Options) ErrorPath(t model.HostType, id int) string {
	return o.ConfigPath(t, id) + ErrSuffix
}

// ChallengePath returns the temporary HTTP-01 vhost of a certificate
func (o *Options) ChallengePath(certID int) string {
	return filepath.Join(o.DataDir, "nginx", "temp", fmt.Sprintf("letsencrypt_%d.conf", certID))
}

// CertificateDir returns the live directory nginx reads a certificate from
func (o *Options) CertificateDir(cert *model.Certificate) string {
	base := o.LetsEncryptDir
	if !cert.IsLetsEncrypt() {
		base = o.CustomSSLDir
	}
	return filepath.Join(base, "live", cert.CertName(o.CertPrefix))
}
