// Package certificate manages the lifecycle of Let's Encrypt and custom
// certificates: issuance, renewal, revocation, upload and deletion.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"proxy_manager/internal/access"
	"proxy_manager/internal/acme"
	"proxy_manager/internal/apperr"
	"proxy_manager/internal/audit"
	"proxy_manager/internal/conflict"
	"proxy_manager/internal/domainutil"
	"proxy_manager/internal/model"
	"proxy_manager/internal/nginx"
)

const objectType = "certificate"

// Store persists certificate rows
type Store interface {
	InsertCertificate(ctx context.Context, cert *model.Certificate) error
	GetCertificate(ctx context.Context, id int) (*model.Certificate, error)
	ListCertificates(ctx context.Context) ([]model.Certificate, error)
	PatchCertificate(ctx context.Context, id int, updates map[string]interface{}) error
	HardDeleteCertificate(ctx context.Context, id int) error
	SoftDeleteCertificate(ctx context.Context, id int) error
}

// InUseFinder finds the hosts serving a set of domains
type InUseFinder interface {
	GetHostsWithDomains(ctx context.Context, domains []string) (*conflict.InUseResult, error)
}

// Nginx is the reconciler surface used while issuing
type Nginx interface {
	Do(ctx context.Context, fn func(s *nginx.Session) error) error
	Reload(ctx context.Context) error
	Options() nginx.Options
}

// ACME issues, renews and revokes certificates
type ACME interface {
	RequestHTTP(ctx context.Context, cert *model.Certificate) (string, error)
	RequestDNS(ctx context.Context, cert *model.Certificate) (string, error)
	Renew(ctx context.Context, cert *model.Certificate) (string, error)
	Revoke(ctx context.Context, cert *model.Certificate) (string, error)
	WriteCredentials(ctx context.Context, cert *model.Certificate) (string, error)
	RemoveCredentials(cert *model.Certificate) error
	Settings() acme.Settings
}

// Validator checks uploaded key and certificate material
type Validator interface {
	CheckPrivateKey(ctx context.Context, key string) error
	CertificateInfo(ctx context.Context, pem string, rejectExpired bool) (*acme.CertInfo, error)
}

// Deps are the collaborators of a Manager
type Deps struct {
	Store      Store
	Hosts      InUseFinder
	Nginx      Nginx
	ACME       ACME
	Validator  Validator
	Authorizer access.Authorizer
	Audit      audit.Recorder
}

// Options tune the issuance flow
type Options struct {
	// SettleDelay is the pause between activating the HTTP-01 vhost and
	// starting certbot
	SettleDelay time.Duration
	// HTTPClient fetches the reachability test file. Defaults to a client
	// with a 10s timeout.
	HTTPClient *http.Client
}

// Manager drives certificate issuance and maintenance
type Manager struct {
	store     Store
	hosts     InUseFinder
	nginx     Nginx
	acme      ACME
	validator Validator
	authz     access.Authorizer
	audit     audit.Recorder
	opts      Options
	logger    *logrus.Entry
}

// NewManager creates a Manager
func NewManager(deps Deps, opts Options, logger *logrus.Entry) *Manager {
	if deps.Authorizer == nil {
		deps.Authorizer = access.AllowAll{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.Discard{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Manager{
		store:     deps.Store,
		hosts:     deps.Hosts,
		nginx:     deps.Nginx,
		acme:      deps.ACME,
		validator: deps.Validator,
		authz:     deps.Authorizer,
		audit:     deps.Audit,
		opts:      opts,
		logger:    logger.WithField("component", "certificate"),
	}
}

// CreateRequest describes a new certificate
type CreateRequest struct {
	Provider    string                `json:"provider"`
	NiceName    string                `json:"nice_name"`
	DomainNames []string              `json:"domain_names"`
	Meta        model.CertificateMeta `json:"meta"`
}

func perm(action string) access.Permission {
	return access.Perm(access.ObjectCertificates, action)
}

// List returns every certificate
func (m *Manager) List(ctx context.Context) ([]model.Certificate, error) {
	if err := m.authz.Can(ctx, perm(access.ActionList)); err != nil {
		return nil, err
	}
	return m.store.ListCertificates(ctx)
}

// Get returns one certificate
func (m *Manager) Get(ctx context.Context, id int) (*model.Certificate, error) {
	if err := m.authz.Can(ctx, perm(access.ActionGet)); err != nil {
		return nil, err
	}
	return m.store.GetCertificate(ctx, id)
}

// Create stores a new certificate. Let's Encrypt certificates are issued
// before Create returns; a failed issuance leaves no row behind.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*model.Certificate, error) {
	if err := m.authz.Can(ctx, perm(access.ActionCreate)); err != nil {
		return nil, err
	}

	var (
		cert *model.Certificate
		err  error
	)
	switch req.Provider {
	case model.CertificateProviderLetsEncrypt:
		cert, err = m.createLetsEncrypt(ctx, req)
	case model.CertificateProviderOther:
		cert, err = m.createCustom(ctx, req)
	default:
		return nil, apperr.Validation("unknown certificate provider '%s'", req.Provider)
	}
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if err := m.audit.Record(ctx, audit.ActionCreated, objectType, cert.ID, auditMeta(cert)); err != nil {
		m.logger.WithError(err).Warn("Could not write audit log")
	}
	return cert, nil
}

// CreateQuick requests a Let's Encrypt certificate on behalf of a host
// that asked for a "new" certificate.
func (m *Manager) CreateQuick(ctx context.Context, domains []string, meta model.CertificateMeta) (*model.Certificate, error) {
	return m.Create(ctx, CreateRequest{
		Provider:    model.CertificateProviderLetsEncrypt,
		DomainNames: domains,
		Meta:        meta,
	})
}

func (m *Manager) createLetsEncrypt(ctx context.Context, req CreateRequest) (*model.Certificate, error) {
	domains, err := domainutil.NormalizeList(req.DomainNames)
	if err != nil {
		return nil, apperr.ValidationWrap(err, "invalid domain names")
	}
	if len(domains) == 0 {
		return nil, apperr.Validation("at least one domain name is required")
	}
	meta := req.Meta
	if !meta.LetsEncryptAgree {
		return nil, apperr.Validation("the Let's Encrypt terms of service must be agreed to")
	}
	if !meta.DNSChallenge {
		for _, d := range domains {
			if domainutil.IsWildcard(d) {
				return nil, apperr.Validation("wildcard domain %s requires a DNS challenge", d)
			}
		}
	} else if _, ok := acme.LookupPlugin(meta.DNSProvider); !ok {
		return nil, apperr.Validation("Unknown DNS provider '%s'", meta.DNSProvider)
	}
	// custom material never applies to issued certificates
	meta.Certificate, meta.CertificateKey, meta.IntermediateCertificate = "", "", ""

	cert := &model.Certificate{
		Provider:    model.CertificateProviderLetsEncrypt,
		NiceName:    strings.Join(domains, ", "),
		DomainNames: datatypes.JSONSlice[string](domains),
		Status:      model.CertificateStatusRequested,
		Meta:        datatypes.NewJSONType(meta),
	}
	if err := m.store.InsertCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("insert certificate: %w", err)
	}

	if err := m.finishLetsEncrypt(ctx, cert); err != nil {
		if derr := m.store.HardDeleteCertificate(context.WithoutCancel(ctx), cert.ID); derr != nil {
			m.logger.WithError(derr).WithField("certificate_id", cert.ID).Error("Could not delete failed certificate")
		}
		return nil, err
	}
	return cert, nil
}

func (m *Manager) finishLetsEncrypt(ctx context.Context, cert *model.Certificate) error {
	inUse, err := m.hosts.GetHostsWithDomains(ctx, cert.DomainNames)
	if err != nil {
		return fmt.Errorf("find in-use hosts: %w", err)
	}
	if err := m.issue(ctx, cert, inUse); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	// the issued file is the only trusted source of the expiry
	info, err := acme.ReadCertInfo(m.fullchainPath(cert))
	if err != nil {
		return fmt.Errorf("read issued certificate: %w", err)
	}
	expires := info.NotAfter
	if err := m.store.PatchCertificate(ctx, cert.ID, map[string]interface{}{
		"expires_on": expires,
		"status":     model.CertificateStatusActive,
	}); err != nil {
		return err
	}
	cert.ExpiresOn = &expires
	cert.Status = model.CertificateStatusActive
	return nil
}

// UpdateRequest renames a certificate
type UpdateRequest struct {
	ID       int    `json:"id" binding:"required"`
	NiceName string `json:"nice_name"`
}

// Update changes the display name of a certificate. Domains and material
// are fixed once stored.
func (m *Manager) Update(ctx context.Context, req UpdateRequest) (*model.Certificate, error) {
	if err := m.authz.Can(ctx, perm(access.ActionUpdate)); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.NiceName)
	if name == "" {
		return nil, apperr.Validation("nice_name is required")
	}
	cert, err := m.store.GetCertificate(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if err := m.store.PatchCertificate(ctx, cert.ID, map[string]interface{}{"nice_name": name}); err != nil {
		return nil, err
	}
	cert.NiceName = name

	if err := m.audit.Record(ctx, audit.ActionUpdated, objectType, cert.ID, auditMeta(cert)); err != nil {
		m.logger.WithError(err).Warn("Could not write audit log")
	}
	return cert, nil
}

// Renew forces renewal of a Let's Encrypt certificate. In-use hosts keep
// serving; their own config answers the challenge.
func (m *Manager) Renew(ctx context.Context, id int) (*model.Certificate, error) {
	if err := m.authz.Can(ctx, perm(access.ActionUpdate)); err != nil {
		return nil, err
	}
	cert, err := m.store.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cert.IsLetsEncrypt() {
		return nil, apperr.Validation("Only Let's Encrypt certificates can be renewed")
	}

	previous := cert.Status
	if err := m.store.PatchCertificate(ctx, id, map[string]interface{}{"status": model.CertificateStatusRenewing}); err != nil {
		return nil, err
	}
	renewed := false
	defer func() {
		if renewed {
			return
		}
		// a certificate left in renewing is never picked up again
		if perr := m.store.PatchCertificate(context.WithoutCancel(ctx), id, map[string]interface{}{"status": previous}); perr != nil {
			m.logger.WithError(perr).WithField("certificate_id", id).Error("Could not restore certificate status")
		}
	}()

	if _, err := m.acme.Renew(ctx, cert); err != nil {
		return nil, err
	}
	// certbot replaced the material, the rest must finish
	ctx = context.WithoutCancel(ctx)

	info, err := acme.ReadCertInfo(m.fullchainPath(cert))
	if err != nil {
		return nil, fmt.Errorf("read renewed certificate: %w", err)
	}
	expires := info.NotAfter
	if err := m.store.PatchCertificate(ctx, id, map[string]interface{}{
		"expires_on": expires,
		"status":     model.CertificateStatusActive,
	}); err != nil {
		return nil, err
	}
	renewed = true
	cert.ExpiresOn = &expires
	cert.Status = model.CertificateStatusActive

	// nginx only picks up the new material on reload
	if err := m.nginx.Reload(ctx); err != nil {
		m.logger.WithError(err).WithField("certificate_id", id).Error("Reload after renewal failed")
	}

	if err := m.audit.Record(ctx, audit.ActionRenewed, objectType, id, auditMeta(cert)); err != nil {
		m.logger.WithError(err).Warn("Could not write audit log")
	}
	return cert, nil
}

// Revoke revokes cert with the ACME server. Failures are logged and
// swallowed unless throwOnError is set.
func (m *Manager) Revoke(ctx context.Context, cert *model.Certificate, throwOnError bool) error {
	if _, err := m.acme.Revoke(ctx, cert); err != nil {
		m.logger.WithError(err).WithField("certificate_id", cert.ID).Warn("Revoke failed")
		if throwOnError {
			return err
		}
		return nil
	}
	if err := m.store.PatchCertificate(ctx, cert.ID, map[string]interface{}{"status": model.CertificateStatusRevoked}); err != nil {
		m.logger.WithError(err).Warn("Could not mark certificate revoked")
	}
	cert.Status = model.CertificateStatusRevoked
	return nil
}

// Delete soft-deletes a certificate, then revokes it (Let's Encrypt) or
// removes its files (custom).
func (m *Manager) Delete(ctx context.Context, id int) error {
	if err := m.authz.Can(ctx, perm(access.ActionDelete)); err != nil {
		return err
	}
	cert, err := m.store.GetCertificate(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.SoftDeleteCertificate(ctx, id); err != nil {
		return err
	}
	if err := m.audit.Record(ctx, audit.ActionDeleted, objectType, id, auditMeta(cert)); err != nil {
		m.logger.WithError(err).Warn("Could not write audit log")
	}

	if cert.IsLetsEncrypt() {
		return m.Revoke(ctx, cert, false)
	}
	if err := m.removeCustomFiles(cert); err != nil {
		m.logger.WithError(err).WithField("certificate_id", id).Warn("Could not remove certificate files")
	}
	return nil
}

func (m *Manager) fullchainPath(cert *model.Certificate) string {
	s := m.acme.Settings()
	return s.FullchainPath(cert)
}

// auditMeta strips private material from the record kept in the audit log
func auditMeta(cert *model.Certificate) map[string]interface{} {
	meta := cert.Settings()
	out := map[string]interface{}{
		"provider":     cert.Provider,
		"nice_name":    cert.NiceName,
		"domain_names": []string(cert.DomainNames),
		"status":       cert.Status,
	}
	if cert.ExpiresOn != nil {
		out["expires_on"] = cert.ExpiresOn.UTC().Format(time.RFC3339)
	}
	if meta.DNSChallenge {
		out["dns_provider"] = meta.DNSProvider
	}
	return out
}

var errNotCustom = errors.New("not a custom certificate")
