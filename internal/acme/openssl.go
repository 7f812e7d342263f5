package acme

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/shell"
)

// openssl prints dates like "Jul 14 04:04:29 2018 GMT"
const opensslDateLayout = "Jan _2 15:04:05 2006 MST"

var (
	subjectCNRe = regexp.MustCompile(`CN\s*=\s*([^,/\n]+)`)
	issuerRe    = regexp.MustCompile(`(?m)^(?:issuer=)?(.*)$`)
	dateLineRe  = regexp.MustCompile(`^(\S+?)=(.*)$`)
)

// OpenSSL validates uploaded keys and certificates with the openssl binary
type OpenSSL struct {
	bin    string
	tmpDir string
	shell  shell.Runner
	now    func() time.Time
}

// NewOpenSSL creates an OpenSSL validator writing temp files to tmpDir
func NewOpenSSL(bin, tmpDir string, sh shell.Runner) *OpenSSL {
	if bin == "" {
		bin = "openssl"
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &OpenSSL{bin: bin, tmpDir: tmpDir, shell: sh, now: time.Now}
}

// CheckPrivateKey verifies that key is an unencrypted, consistent private key
func (o *OpenSSL) CheckPrivateKey(ctx context.Context, key string) error {
	path, cleanup, err := o.tempFile(key)
	if err != nil {
		return err
	}
	defer cleanup()

	// empty passphrase makes encrypted keys fail instead of prompting
	out, err := o.shell.Run(ctx, shell.Command{Name: o.bin, Args: []string{"pkey", "-in", path, "-passin", "pass:", "-check", "-noout"}})
	if err != nil {
		return apperr.ValidationWrap(err, "Certificate Key is not valid")
	}
	if !strings.Contains(strings.ToLower(out), "key is valid") {
		return apperr.Validation("Result Validation Error: %s", strings.TrimSpace(out))
	}
	return nil
}

// CertificateInfo parses subject, issuer and validity of a PEM certificate.
// With rejectExpired an already expired certificate is a validation error.
func (o *OpenSSL) CertificateInfo(ctx context.Context, pem string, rejectExpired bool) (*CertInfo, error) {
	path, cleanup, err := o.tempFile(pem)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	info, err := o.certificateInfoFromFile(ctx, path)
	if err != nil {
		return nil, apperr.ValidationWrap(err, "Certificate is not valid")
	}
	if rejectExpired && info.NotAfter.Before(o.now()) {
		return nil, apperr.Validation("Certificate has expired")
	}
	return info, nil
}

func (o *OpenSSL) certificateInfoFromFile(ctx context.Context, path string) (*CertInfo, error) {
	info := &CertInfo{}

	out, err := o.x509(ctx, path, "-subject")
	if err != nil {
		return nil, err
	}
	m := subjectCNRe.FindStringSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("could not determine subject from certificate: %s", strings.TrimSpace(out))
	}
	info.CN = strings.TrimSpace(m[1])

	out, err = o.x509(ctx, path, "-issuer")
	if err != nil {
		return nil, err
	}
	m = issuerRe.FindStringSubmatch(strings.TrimSpace(out))
	if m == nil || m[1] == "" {
		return nil, fmt.Errorf("could not determine issuer from certificate: %s", strings.TrimSpace(out))
	}
	info.Issuer = strings.TrimSpace(m[1])

	out, err = o.x509(ctx, path, "-dates")
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(out, "\n") {
		dm := dateLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if dm == nil {
			continue
		}
		t, perr := time.Parse(opensslDateLayout, strings.TrimSpace(dm[2]))
		if perr != nil {
			continue
		}
		switch strings.ToLower(dm[1]) {
		case "notbefore":
			info.NotBefore = t.UTC()
		case "notafter":
			info.NotAfter = t.UTC()
		}
	}
	if info.NotBefore.IsZero() || info.NotAfter.IsZero() {
		return nil, fmt.Errorf("could not determine dates from certificate: %s", strings.TrimSpace(out))
	}
	return info, nil
}

func (o *OpenSSL) x509(ctx context.Context, path, flag string) (string, error) {
	return o.shell.Run(ctx, shell.Command{Name: o.bin, Args: []string{"x509", "-in", path, flag, "-noout"}})
}

func (o *OpenSSL) tempFile(content string) (string, func(), error) {
	path := filepath.Join(o.tmpDir, "proxy-manager-"+uuid.NewString()+".pem")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}
