package certificate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/datatypes"

	"proxy_manager/internal/access"
	"proxy_manager/internal/acme"
	"proxy_manager/internal/apperr"
	"proxy_manager/internal/audit"
	"proxy_manager/internal/domainutil"
	"proxy_manager/internal/model"
)

// Files is uploaded certificate material, PEM encoded
type Files struct {
	Certificate             string `json:"certificate"`
	CertificateKey          string `json:"certificate_key"`
	IntermediateCertificate string `json:"intermediate_certificate"`
}

// ValidationResult reports what was checked for each supplied file
type ValidationResult struct {
	Certificate             *acme.CertInfo `json:"certificate,omitempty"`
	CertificateKey          bool           `json:"certificate_key,omitempty"`
	IntermediateCertificate *acme.CertInfo `json:"intermediate_certificate,omitempty"`
}

// Validate checks the supplied files with openssl. Nothing is stored.
func (m *Manager) Validate(ctx context.Context, files Files) (*ValidationResult, error) {
	res := &ValidationResult{}
	if files.CertificateKey != "" {
		if err := m.validator.CheckPrivateKey(ctx, files.CertificateKey); err != nil {
			return nil, err
		}
		res.CertificateKey = true
	}
	if files.Certificate != "" {
		info, err := m.validator.CertificateInfo(ctx, files.Certificate, true)
		if err != nil {
			return nil, err
		}
		res.Certificate = info
	}
	if files.IntermediateCertificate != "" {
		info, err := m.validator.CertificateInfo(ctx, files.IntermediateCertificate, true)
		if err != nil {
			return nil, err
		}
		res.IntermediateCertificate = info
	}
	return res, nil
}

func (m *Manager) createCustom(ctx context.Context, req CreateRequest) (*model.Certificate, error) {
	if strings.TrimSpace(req.NiceName) == "" {
		return nil, apperr.Validation("nice_name is required for custom certificates")
	}
	domains, err := domainutil.NormalizeList(req.DomainNames)
	if err != nil {
		return nil, apperr.ValidationWrap(err, "invalid domain names")
	}

	meta := model.CertificateMeta{
		Certificate:             req.Meta.Certificate,
		CertificateKey:          req.Meta.CertificateKey,
		IntermediateCertificate: req.Meta.IntermediateCertificate,
	}
	cert := &model.Certificate{
		Provider:    model.CertificateProviderOther,
		NiceName:    strings.TrimSpace(req.NiceName),
		DomainNames: datatypes.JSONSlice[string](domains),
		Status:      model.CertificateStatusRequested,
		Meta:        datatypes.NewJSONType(meta),
	}

	// material may also arrive later through Upload
	hasMaterial := meta.Certificate != ""
	if hasMaterial {
		info, err := m.validateUpload(ctx, filesOf(meta))
		if err != nil {
			return nil, err
		}
		applyCertInfo(cert, info)
	}

	if err := m.store.InsertCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("insert certificate: %w", err)
	}
	if !hasMaterial {
		return cert, nil
	}
	if err := m.writeCustomFiles(cert); err != nil {
		if derr := m.store.HardDeleteCertificate(context.WithoutCancel(ctx), cert.ID); derr != nil {
			m.logger.WithError(derr).WithField("certificate_id", cert.ID).Error("Could not delete failed certificate")
		}
		return nil, err
	}
	return cert, nil
}

// Upload replaces the material of a custom certificate. A missing key keeps
// the stored one.
func (m *Manager) Upload(ctx context.Context, id int, files Files) (*model.Certificate, error) {
	if err := m.authz.Can(ctx, perm(access.ActionUpdate)); err != nil {
		return nil, err
	}
	cert, err := m.store.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Provider != model.CertificateProviderOther {
		return nil, apperr.Validation("Cannot upload certificates for this type of provider")
	}
	if files.Certificate == "" {
		return nil, apperr.Validation("Certificate file was not provided")
	}

	meta := cert.Settings()
	meta.Certificate = files.Certificate
	meta.IntermediateCertificate = files.IntermediateCertificate
	if files.CertificateKey != "" {
		meta.CertificateKey = files.CertificateKey
	}

	info, err := m.validateUpload(ctx, filesOf(meta))
	if err != nil {
		return nil, err
	}
	cert.Meta = datatypes.NewJSONType(meta)
	applyCertInfo(cert, info)

	if err := m.store.PatchCertificate(ctx, id, map[string]interface{}{
		"meta":         cert.Meta,
		"domain_names": cert.DomainNames,
		"expires_on":   cert.ExpiresOn,
		"status":       cert.Status,
	}); err != nil {
		return nil, err
	}
	if err := m.writeCustomFiles(cert); err != nil {
		return nil, err
	}

	if err := m.audit.Record(ctx, audit.ActionUpdated, objectType, id, auditMeta(cert)); err != nil {
		m.logger.WithError(err).Warn("Could not write audit log")
	}
	return cert, nil
}

func (m *Manager) validateUpload(ctx context.Context, files Files) (*acme.CertInfo, error) {
	if files.CertificateKey == "" {
		return nil, apperr.Validation("Certificate Key file was not provided")
	}
	res, err := m.Validate(ctx, files)
	if err != nil {
		return nil, err
	}
	return res.Certificate, nil
}

func filesOf(meta model.CertificateMeta) Files {
	return Files{
		Certificate:             meta.Certificate,
		CertificateKey:          meta.CertificateKey,
		IntermediateCertificate: meta.IntermediateCertificate,
	}
}

func applyCertInfo(cert *model.Certificate, info *acme.CertInfo) {
	expires := info.NotAfter
	cert.ExpiresOn = &expires
	cert.Status = model.CertificateStatusActive
	if len(cert.DomainNames) == 0 && info.CN != "" {
		cert.DomainNames = datatypes.JSONSlice[string]{strings.ToLower(info.CN)}
	}
}

// writeCustomFiles lays the material out like certbot does: numbered files
// under archive/<name> and unnumbered symlinks under live/<name>.
func (m *Manager) writeCustomFiles(cert *model.Certificate) error {
	if cert.IsLetsEncrypt() {
		return errNotCustom
	}
	opts := m.nginx.Options()
	name := cert.CertName(opts.CertPrefix)
	archive := m.archiveDir(cert)
	live := opts.CertificateDir(cert)
	m.logger.WithField("certificate_id", cert.ID).Infof("Writing custom certificate to %s", live)

	meta := cert.Settings()
	fullchain := joinPEM(meta.Certificate, meta.IntermediateCertificate)
	files := []struct {
		base    string
		content string
		mode    os.FileMode
	}{
		{"cert", joinPEM(meta.Certificate), 0644},
		{"chain", joinPEM(meta.IntermediateCertificate), 0644},
		{"fullchain", fullchain, 0644},
		{"privkey", joinPEM(meta.CertificateKey), 0600},
	}

	if err := os.MkdirAll(archive, 0700); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.MkdirAll(live, 0755); err != nil {
		return fmt.Errorf("create live dir: %w", err)
	}
	for _, f := range files {
		link := filepath.Join(live, f.base+".pem")
		if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if f.content == "" {
			continue
		}
		target := filepath.Join(archive, f.base+"1.pem")
		if err := os.WriteFile(target, []byte(f.content), f.mode); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		if err := os.Chmod(target, f.mode); err != nil {
			return err
		}
		if err := os.Symlink(filepath.Join("..", "..", "archive", name, f.base+"1.pem"), link); err != nil {
			return fmt.Errorf("link %s: %w", link, err)
		}
	}
	return nil
}

func (m *Manager) removeCustomFiles(cert *model.Certificate) error {
	opts := m.nginx.Options()
	return errors.Join(
		os.RemoveAll(opts.CertificateDir(cert)),
		os.RemoveAll(m.archiveDir(cert)),
	)
}

func (m *Manager) archiveDir(cert *model.Certificate) string {
	opts := m.nginx.Options()
	return filepath.Join(opts.CustomSSLDir, "archive", cert.CertName(opts.CertPrefix))
}

func joinPEM(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}
