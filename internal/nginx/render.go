package nginx

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"proxy_manager/internal/domainutil"
	"proxy_manager/internal/model"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var defaultLocationRe = regexp.MustCompile(`(?im)^(?:.*;)?\s*?location\s*?/\s*?{`)

// Renderer turns host records into nginx configuration text
type Renderer struct {
	opts      *Options
	templates *template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer(opts *Options) (*Renderer, error) {
	tmpl, err := template.New("nginx").Funcs(template.FuncMap{
		"join": strings.Join,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{opts: opts, templates: tmpl}, nil
}

// HostData is the template view of a host
type HostData struct {
	Host               *model.Host
	ServerNames        []string
	ForwardHost        string
	ForwardPath        string
	RedirectScheme     string
	Locations          string
	UseDefaultLocation bool
	HasCertificate     bool
	CertificatePath    string
	KeyPath            string
	LogDir             string
}

// LocationData is the template view of one custom location
type LocationData struct {
	model.Location
	ForwardPath string
}

// ChallengeData is the template view of a temporary ACME vhost
type ChallengeData struct {
	CertificateID int
	ServerNames   []string
	Webroot       string
}

// RenderHost renders the type-specific template of host. The output depends
// only on the host's attributes.
func (r *Renderer) RenderHost(host *model.Host) ([]byte, error) {
	data := &HostData{
		Host:               host,
		ServerNames:        serverNames(host.DomainNames),
		UseDefaultLocation: true,
		RedirectScheme:     redirectScheme(host.ForwardScheme),
		LogDir:             filepath.Join(r.opts.DataDir, "logs"),
	}
	data.ForwardHost, data.ForwardPath = splitForwardHost(host.ForwardHost)

	if host.AdvancedConfig != "" && HasDefaultLocation(host.AdvancedConfig) {
		data.UseDefaultLocation = false
	}

	if host.Type == model.HostTypeProxy && len(host.Locations) > 0 {
		locations, err := r.renderLocations(host.Locations)
		if err != nil {
			return nil, err
		}
		data.Locations = locations
		for _, loc := range host.Locations {
			if loc.Path == "/" {
				data.UseDefaultLocation = false
			}
		}
	}

	if host.CertificateID != nil && host.Certificate != nil {
		dir := r.opts.CertificateDir(host.Certificate)
		data.HasCertificate = true
		data.CertificatePath = filepath.Join(dir, "fullchain.pem")
		data.KeyPath = filepath.Join(dir, "privkey.pem")
	}

	return r.execute(string(host.Type)+".tmpl", data)
}

// RenderChallenge renders the temporary HTTP-01 vhost for cert
func (r *Renderer) RenderChallenge(cert *model.Certificate) ([]byte, error) {
	return r.execute("letsencrypt_request.tmpl", &ChallengeData{
		CertificateID: cert.ID,
		ServerNames:   serverNames(cert.DomainNames),
		Webroot:       r.opts.ACMEWebroot,
	})
}

// every location renders on its own and the results are concatenated before
// the host template runs
func (r *Renderer) renderLocations(locations []model.Location) (string, error) {
	var sb strings.Builder
	for _, loc := range locations {
		data := LocationData{Location: loc}
		data.ForwardHost, data.ForwardPath = splitForwardHost(loc.ForwardHost)
		out, err := r.execute("_location.tmpl", data)
		if err != nil {
			return "", err
		}
		sb.Write(out)
	}
	return sb.String(), nil
}

func (r *Renderer) execute(name string, data interface{}) ([]byte, error) {
	if r.templates.Lookup(name) == nil {
		return nil, fmt.Errorf("no template for %s", strings.TrimSuffix(name, ".tmpl"))
	}
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.Bytes(), nil
}

// HasDefaultLocation reports whether custom nginx directives declare
// "location /" themselves.
func HasDefaultLocation(advanced string) bool {
	return defaultLocationRe.MatchString(advanced)
}

// splitForwardHost splits "backend:8080/app" style targets into host and
// path. Root paths and unix sockets are left untouched.
func splitForwardHost(target string) (string, string) {
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, "unix:") {
		return target, ""
	}
	i := strings.Index(target, "/")
	if i < 0 {
		return target, ""
	}
	return target[:i], target[i:]
}

func serverNames(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		out = append(out, domainutil.ToASCII(d))
	}
	return out
}

func redirectScheme(scheme string) string {
	switch scheme {
	case "http", "https":
		return scheme
	}
	return "$scheme"
}
