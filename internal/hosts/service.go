// Package hosts creates, updates and removes proxy, redirection, dead and
// stream hosts and keeps their nginx configs in step.
package hosts

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"proxy_manager/internal/access"
	"proxy_manager/internal/apperr"
	"proxy_manager/internal/audit"
	"proxy_manager/internal/model"
	"proxy_manager/internal/store"
)

// Store persists hosts
type Store interface {
	ListHostsPage(ctx context.Context, f store.HostFilter) ([]model.Host, int64, error)
	GetHost(ctx context.Context, id int) (*model.Host, error)
	CreateHost(ctx context.Context, host *model.Host) error
	SaveHost(ctx context.Context, host *model.Host) error
	SoftDeleteHost(ctx context.Context, id int) error
	GetCertificate(ctx context.Context, id int) (*model.Certificate, error)
}

// Conflicts rejects domain names already served by another host
type Conflicts interface {
	CheckDomains(ctx context.Context, domains []string, exclude *model.HostRef) error
}

// Nginx applies host configs
type Nginx interface {
	Configure(ctx context.Context, host *model.Host) (datatypes.JSONMap, error)
	DeleteConfig(ctx context.Context, host *model.Host) error
	Reload(ctx context.Context) error
}

// Certificates requests certificates for hosts asking for a new one
type Certificates interface {
	CreateQuick(ctx context.Context, domains []string, meta model.CertificateMeta) (*model.Certificate, error)
}

// Service manages hosts of every variant
type Service struct {
	store     Store
	conflicts Conflicts
	nginx     Nginx
	certs     Certificates
	authz     access.Authorizer
	audit     audit.Recorder
	logger    *logrus.Entry
}

// NewService creates a Service
func NewService(st Store, conflicts Conflicts, nginx Nginx, certs Certificates, authz access.Authorizer, rec audit.Recorder, logger *logrus.Entry) *Service {
	if authz == nil {
		authz = access.AllowAll{}
	}
	if rec == nil {
		rec = audit.Discard{}
	}
	return &Service{
		store:     st,
		conflicts: conflicts,
		nginx:     nginx,
		certs:     certs,
		authz:     authz,
		audit:     rec,
		logger:    logger.WithField("component", "hosts"),
	}
}

func (s *Service) can(ctx context.Context, t model.HostType, action string) error {
	return s.authz.Can(ctx, access.Perm(access.HostObject(t), action))
}

// List returns one page of hosts of type t
func (s *Service) List(ctx context.Context, f store.HostFilter) ([]model.Host, int64, error) {
	if err := s.can(ctx, f.Type, access.ActionList); err != nil {
		return nil, 0, err
	}
	return s.store.ListHostsPage(ctx, f)
}

// Get returns host id of type t
func (s *Service) Get(ctx context.Context, t model.HostType, id int) (*model.Host, error) {
	if err := s.can(ctx, t, access.ActionGet); err != nil {
		return nil, err
	}
	return s.get(ctx, t, id)
}

func (s *Service) get(ctx context.Context, t model.HostType, id int) (*model.Host, error) {
	host, err := s.store.GetHost(ctx, id)
	if err != nil {
		return nil, err
	}
	if host.Type != t {
		return nil, apperr.NotFound("%s %d not found", t, id)
	}
	return host, nil
}

// Create validates, stores and configures a new host
func (s *Service) Create(ctx context.Context, t model.HostType, in Input) (*model.Host, error) {
	if err := s.can(ctx, t, access.ActionCreate); err != nil {
		return nil, err
	}
	if err := in.normalize(t); err != nil {
		return nil, err
	}
	if t.HasDomains() {
		if err := s.conflicts.CheckDomains(ctx, in.DomainNames, nil); err != nil {
			return nil, err
		}
	}
	if err := s.resolveCertificate(ctx, &in, nil); err != nil {
		return nil, err
	}

	host := &model.Host{Type: t, Enabled: true, ConfigState: model.ConfigStateNone}
	if in.Enabled != nil {
		host.Enabled = *in.Enabled
	}
	host.Meta = hostMeta(nil, in.Meta)
	in.apply(host)
	host.CleanSSLHSTS()

	if err := s.store.CreateHost(ctx, host); err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	host, err := s.configure(ctx, host.ID, t)
	if err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, audit.ActionCreated, string(t), host.ID, auditMeta(host)); err != nil {
		s.logger.WithError(err).Warn("Could not write audit log")
	}
	return host, nil
}

// Update replaces the settings of an existing host and reconfigures it
func (s *Service) Update(ctx context.Context, t model.HostType, id int, in Input) (*model.Host, error) {
	if err := s.can(ctx, t, access.ActionUpdate); err != nil {
		return nil, err
	}
	host, err := s.get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if in.DomainNames == nil {
		in.DomainNames = host.DomainNames
	}
	if err := in.normalize(t); err != nil {
		return nil, err
	}
	ref := host.Ref()
	if t.HasDomains() {
		if err := s.conflicts.CheckDomains(ctx, in.DomainNames, &ref); err != nil {
			return nil, err
		}
	}
	if err := s.resolveCertificate(ctx, &in, host.Meta); err != nil {
		return nil, err
	}

	if in.Enabled != nil {
		host.Enabled = *in.Enabled
	}
	host.Meta = hostMeta(host.Meta, in.Meta)
	in.apply(host)
	host.CleanSSLHSTS()
	host.Certificate = nil

	if err := s.store.SaveHost(ctx, host); err != nil {
		return nil, fmt.Errorf("save host: %w", err)
	}
	if err := s.audit.Record(ctx, audit.ActionUpdated, string(t), id, auditMeta(host)); err != nil {
		s.logger.WithError(err).Warn("Could not write audit log")
	}

	if !host.Enabled {
		if err := s.unconfigure(ctx, host); err != nil {
			return nil, err
		}
		return s.store.GetHost(ctx, id)
	}
	return s.configure(ctx, id, t)
}

// Delete soft-deletes a host and removes its config
func (s *Service) Delete(ctx context.Context, t model.HostType, id int) error {
	if err := s.can(ctx, t, access.ActionDelete); err != nil {
		return err
	}
	host, err := s.get(ctx, t, id)
	if err != nil {
		return err
	}
	if err := s.store.SoftDeleteHost(ctx, id); err != nil {
		return err
	}
	if err := s.nginx.DeleteConfig(ctx, host); err != nil {
		return err
	}
	if err := s.nginx.Reload(ctx); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, audit.ActionDeleted, string(t), id, auditMeta(host)); err != nil {
		s.logger.WithError(err).Warn("Could not write audit log")
	}
	return nil
}

// Enable turns a disabled host back on and configures it
func (s *Service) Enable(ctx context.Context, t model.HostType, id int) (*model.Host, error) {
	if err := s.can(ctx, t, access.ActionUpdate); err != nil {
		return nil, err
	}
	host, err := s.get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if host.Enabled {
		return nil, apperr.Validation("Host is already enabled")
	}

	host.Enabled = true
	host.Certificate = nil
	if err := s.store.SaveHost(ctx, host); err != nil {
		return nil, err
	}
	host, err = s.configure(ctx, id, t)
	if err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, audit.ActionEnabled, string(t), id, auditMeta(host)); err != nil {
		s.logger.WithError(err).Warn("Could not write audit log")
	}
	return host, nil
}

// Disable turns a host off and removes its config
func (s *Service) Disable(ctx context.Context, t model.HostType, id int) (*model.Host, error) {
	if err := s.can(ctx, t, access.ActionUpdate); err != nil {
		return nil, err
	}
	host, err := s.get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if !host.Enabled {
		return nil, apperr.Validation("Host is already disabled")
	}

	host.Enabled = false
	if err := s.unconfigure(ctx, host); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, audit.ActionDisabled, string(t), id, auditMeta(host)); err != nil {
		s.logger.WithError(err).Warn("Could not write audit log")
	}
	return host, nil
}

// configure reloads the host with its certificate and runs the reconciler
func (s *Service) configure(ctx context.Context, id int, t model.HostType) (*model.Host, error) {
	host, err := s.get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if !host.Enabled {
		return host, nil
	}
	if _, err := s.nginx.Configure(ctx, host); err != nil {
		return nil, err
	}
	return host, nil
}

func (s *Service) unconfigure(ctx context.Context, host *model.Host) error {
	host.ConfigState = model.ConfigStateNone
	host.ConfigPath = ""
	host.Certificate = nil
	if err := s.store.SaveHost(ctx, host); err != nil {
		return err
	}
	if err := s.nginx.DeleteConfig(ctx, host); err != nil {
		return err
	}
	return s.nginx.Reload(ctx)
}

// resolveCertificate turns "new" into a freshly issued certificate and
// checks that a referenced certificate exists
func (s *Service) resolveCertificate(ctx context.Context, in *Input, current datatypes.JSONMap) error {
	switch {
	case in.CertificateID.New:
		meta, err := quickCertificateMeta(hostMeta(current, in.Meta))
		if err != nil {
			return err
		}
		if in.Meta != nil {
			// credentials only travel with the request
			if v, ok := in.Meta["dns_provider_credentials"].(string); ok {
				meta.DNSProviderCredentials = v
			}
		}
		cert, err := s.certs.CreateQuick(ctx, in.DomainNames, meta)
		if err != nil {
			return err
		}
		in.CertificateID = CertificateRef{ID: cert.ID}
	case in.CertificateID.ID > 0:
		if _, err := s.store.GetCertificate(ctx, in.CertificateID.ID); err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return apperr.Validation("certificate %d does not exist", in.CertificateID.ID)
			}
			return err
		}
	}
	return nil
}

// hostMeta merges the request meta over the stored one, without secrets
func hostMeta(current datatypes.JSONMap, patch map[string]interface{}) datatypes.JSONMap {
	merged := model.MergeMeta(current, patch)
	delete(merged, "dns_provider_credentials")
	return merged
}

func auditMeta(h *model.Host) map[string]interface{} {
	return map[string]interface{}{
		"domain_names":   []string(h.DomainNames),
		"enabled":        h.Enabled,
		"certificate_id": model.UVal(h.CertificateID),
		"forward_host":   h.ForwardHost,
		"forward_port":   h.ForwardPort,
	}
}
