package hosts

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/audit"
	"proxy_manager/internal/conflict"
	"proxy_manager/internal/model"
	"proxy_manager/internal/nginx"
	"proxy_manager/internal/shell/shelltest"
	"proxy_manager/internal/store"
	"proxy_manager/internal/store/storetest"
)

type quickCerts struct {
	store   *store.Store
	domains []string
	meta    model.CertificateMeta
}

func (q *quickCerts) CreateQuick(ctx context.Context, domains []string, meta model.CertificateMeta) (*model.Certificate, error) {
	q.domains, q.meta = domains, meta
	cert := &model.Certificate{
		Provider:    model.CertificateProviderLetsEncrypt,
		DomainNames: datatypes.JSONSlice[string](domains),
		Status:      model.CertificateStatusActive,
	}
	return cert, q.store.InsertCertificate(ctx, cert)
}

type fixture struct {
	ctx     context.Context
	store   *store.Store
	nginx   *nginx.Reconciler
	opts    nginx.Options
	sh      *shelltest.Runner
	certs   *quickCerts
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	logger := logrus.NewEntry(l)

	st := store.New(storetest.Open(t))
	sh := &shelltest.Runner{}
	rec, err := nginx.NewReconciler(nginx.Options{DataDir: t.TempDir()}, sh, st, logger)
	require.NoError(t, err)
	certs := &quickCerts{store: st}

	return &fixture{
		ctx:     context.Background(),
		store:   st,
		nginx:   rec,
		opts:    rec.Options(),
		sh:      sh,
		certs:   certs,
		service: NewService(st, conflict.NewResolver(st), rec, certs, nil, audit.New(st, logger), logger),
	}
}

func proxyInput(domains ...string) Input {
	return Input{DomainNames: domains, ForwardHost: "10.0.0.5", ForwardPort: 8080}
}

func TestCreate_ConfiguresHost(t *testing.T) {
	f := newFixture(t)

	host, err := f.service.Create(f.ctx, model.HostTypeProxy, proxyInput("A.example.com", "a.example.com"))
	require.NoError(t, err)
	assert.True(t, host.Enabled)
	assert.Equal(t, []string{"a.example.com"}, []string(host.DomainNames))
	assert.Equal(t, "http", host.ForwardScheme)
	assert.Equal(t, model.ConfigStateActive, host.ConfigState)
	assert.Equal(t, true, host.Meta[model.MetaNginxOnline])
	assert.FileExists(t, f.opts.ConfigPath(model.HostTypeProxy, host.ID))

	logs, err := f.store.ListAuditLogs(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(model.HostTypeProxy), logs[0].ObjectType)
}

func TestCreate_DomainConflictAcrossVariants(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(f.ctx, model.HostTypeDead, Input{DomainNames: []string{"a.example.com"}})
	require.NoError(t, err)
	f.sh.Reset()

	_, err = f.service.Create(f.ctx, model.HostTypeProxy, proxyInput("b.example.com", "A.EXAMPLE.COM"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
	assert.Empty(t, f.sh.Commands())

	hosts, err := f.store.ListHosts(f.ctx, model.HostTypeProxy)
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		t    model.HostType
		in   Input
	}{
		{"proxy without domains", model.HostTypeProxy, proxyInput()},
		{"proxy without upstream", model.HostTypeProxy, Input{DomainNames: []string{"a.example.com"}}},
		{"proxy bad port", model.HostTypeProxy, Input{DomainNames: []string{"a.example.com"}, ForwardHost: "x", ForwardPort: 70000}},
		{"redirection without target", model.HostTypeRedirection, Input{DomainNames: []string{"a.example.com"}}},
		{"redirection bad code", model.HostTypeRedirection, Input{DomainNames: []string{"a.example.com"}, ForwardDomainName: "b.example.com", ForwardHTTPCode: 200}},
		{"stream without protocol", model.HostTypeStream, Input{IncomingPort: 5432, ForwardHost: "db", ForwardPort: 5432}},
		{"missing certificate", model.HostTypeProxy, func() Input {
			in := proxyInput("a.example.com")
			in.CertificateID = CertificateRef{ID: 99}
			return in
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.Create(f.ctx, tt.t, tt.in)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestCreate_NewCertificate(t *testing.T) {
	f := newFixture(t)
	in := proxyInput("a.example.com")
	in.CertificateID = CertificateRef{New: true}
	in.SSLForced = true
	in.Meta = map[string]interface{}{
		"letsencrypt_email":        "ops@example.com",
		"letsencrypt_agree":        true,
		"dns_challenge":            true,
		"dns_provider":             "cloudflare",
		"dns_provider_credentials": "dns_cloudflare_api_token = x",
	}

	host, err := f.service.Create(f.ctx, model.HostTypeProxy, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.example.com"}, f.certs.domains)
	assert.Equal(t, "ops@example.com", f.certs.meta.LetsEncryptEmail)
	assert.Equal(t, "cloudflare", f.certs.meta.DNSProvider)
	assert.Equal(t, "dns_cloudflare_api_token = x", f.certs.meta.DNSProviderCredentials)

	require.NotNil(t, host.CertificateID)
	require.NotNil(t, host.Certificate)
	assert.True(t, host.SSLForced)
	assert.NotContains(t, host.Meta, "dns_provider_credentials")

	content, err := os.ReadFile(f.opts.ConfigPath(model.HostTypeProxy, host.ID))
	require.NoError(t, err)
	assert.Contains(t, string(content), f.opts.CertificateDir(host.Certificate))
}

func TestCreate_CleansSSLFlagsWithoutCertificate(t *testing.T) {
	f := newFixture(t)
	in := proxyInput("a.example.com")
	in.SSLForced, in.HTTP2Support, in.HSTSEnabled, in.HSTSSubdomains = true, true, true, true

	host, err := f.service.Create(f.ctx, model.HostTypeProxy, in)
	require.NoError(t, err)
	assert.False(t, host.SSLForced)
	assert.False(t, host.HTTP2Support)
	assert.False(t, host.HSTSEnabled)
	assert.False(t, host.HSTSSubdomains)
}

func TestUpdate_KeepsOwnDomains(t *testing.T) {
	f := newFixture(t)
	a, err := f.service.Create(f.ctx, model.HostTypeProxy, proxyInput("a.example.com"))
	require.NoError(t, err)
	_, err = f.service.Create(f.ctx, model.HostTypeRedirection, Input{DomainNames: []string{"b.example.com"}, ForwardDomainName: "c.example.com"})
	require.NoError(t, err)

	in := proxyInput("a.example.com")
	in.ForwardPort = 9090
	updated, err := f.service.Update(f.ctx, model.HostTypeProxy, a.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 9090, updated.ForwardPort)
	content, err := os.ReadFile(f.opts.ConfigPath(model.HostTypeProxy, a.ID))
	require.NoError(t, err)
	assert.Contains(t, string(content), "9090")

	_, err = f.service.Update(f.ctx, model.HostTypeProxy, a.ID, proxyInput("a.example.com", "b.example.com"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.service.Update(f.ctx, model.HostTypeDead, a.ID, Input{})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDisableEnable(t *testing.T) {
	f := newFixture(t)
	host, err := f.service.Create(f.ctx, model.HostTypeProxy, proxyInput("a.example.com"))
	require.NoError(t, err)
	path := f.opts.ConfigPath(model.HostTypeProxy, host.ID)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	f.sh.Reset()
	_, err = f.service.Disable(f.ctx, model.HostTypeProxy, host.ID)
	require.NoError(t, err)
	assert.NoFileExists(t, path)
	assert.Equal(t, []string{"-tq", "-s reload"}, nginxArgs(f.sh))

	stored, err := f.store.GetHost(f.ctx, host.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.Equal(t, model.ConfigStateNone, stored.ConfigState)

	_, err = f.service.Disable(f.ctx, model.HostTypeProxy, host.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// a disabled host keeps its domains
	_, err = f.service.Create(f.ctx, model.HostTypeDead, Input{DomainNames: []string{"a.example.com"}})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.service.Enable(f.ctx, model.HostTypeProxy, host.ID)
	require.NoError(t, err)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	host, err := f.service.Create(f.ctx, model.HostTypeStream, Input{IncomingPort: 5432, ForwardHost: "db", ForwardPort: 5432, TCPForwarding: true})
	require.NoError(t, err)
	path := f.opts.ConfigPath(model.HostTypeStream, host.ID)
	assert.FileExists(t, path)

	require.NoError(t, f.service.Delete(f.ctx, model.HostTypeStream, host.ID))
	assert.NoFileExists(t, path)
	_, err = f.service.Get(f.ctx, model.HostTypeStream, host.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.True(t, apperr.IsKind(f.service.Delete(f.ctx, model.HostTypeStream, host.ID), apperr.KindNotFound))
}

func TestCertificateRef_JSON(t *testing.T) {
	tests := []struct {
		in   string
		want CertificateRef
	}{
		{`null`, CertificateRef{}},
		{`0`, CertificateRef{}},
		{`12`, CertificateRef{ID: 12}},
		{`"12"`, CertificateRef{ID: 12}},
		{`"new"`, CertificateRef{New: true}},
		{`""`, CertificateRef{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got struct {
				Ref CertificateRef `json:"certificate_id"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"certificate_id":`+tt.in+`}`), &got))
			assert.Equal(t, tt.want, got.Ref)
		})
	}

	var bad CertificateRef
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}

func nginxArgs(sh *shelltest.Runner) []string {
	var out []string
	for _, c := range sh.Named("nginx") {
		out = append(out, strings.Join(c.Args, " "))
	}
	return out
}
