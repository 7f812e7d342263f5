package hosts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"proxy_manager/internal/apperr"
	"proxy_manager/internal/domainutil"
	"proxy_manager/internal/model"
)

// CertificateRef is the certificate_id of a host request: null, an id, or
// the string "new" asking for a fresh Let's Encrypt certificate.
type CertificateRef struct {
	ID  int
	New bool
}

// UnmarshalJSON accepts null, numbers, numeric strings and "new"
func (r *CertificateRef) UnmarshalJSON(b []byte) error {
	*r = CertificateRef{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		switch s {
		case "", "0":
			return nil
		case "new":
			r.New = true
			return nil
		}
		id, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid certificate_id %q", s)
		}
		r.ID = id
		return nil
	}
	return json.Unmarshal(b, &r.ID)
}

// MarshalJSON writes the id, "new" or null
func (r CertificateRef) MarshalJSON() ([]byte, error) {
	switch {
	case r.New:
		return []byte(`"new"`), nil
	case r.ID > 0:
		return []byte(strconv.Itoa(r.ID)), nil
	}
	return []byte("null"), nil
}

// Input is the writable part of a host, shared by every variant
type Input struct {
	DomainNames    []string               `json:"domain_names"`
	CertificateID  CertificateRef         `json:"certificate_id"`
	Enabled        *bool                  `json:"enabled"`
	Meta           map[string]interface{} `json:"meta"`
	AdvancedConfig string                 `json:"advanced_config"`

	SSLForced      bool `json:"ssl_forced"`
	HTTP2Support   bool `json:"http2_support"`
	HSTSEnabled    bool `json:"hsts_enabled"`
	HSTSSubdomains bool `json:"hsts_subdomains"`

	ForwardScheme         string           `json:"forward_scheme"`
	ForwardHost           string           `json:"forward_host"`
	ForwardPort           int              `json:"forward_port"`
	Locations             []model.Location `json:"locations"`
	CachingEnabled        bool             `json:"caching_enabled"`
	BlockExploits         bool             `json:"block_exploits"`
	AllowWebsocketUpgrade bool             `json:"allow_websocket_upgrade"`

	ForwardDomainName string `json:"forward_domain_name"`
	ForwardHTTPCode   int    `json:"forward_http_code"`
	PreservePath      bool   `json:"preserve_path"`

	IncomingPort  int  `json:"incoming_port"`
	TCPForwarding bool `json:"tcp_forwarding"`
	UDPForwarding bool `json:"udp_forwarding"`
}

var redirectCodes = map[int]bool{300: true, 301: true, 302: true, 303: true, 307: true, 308: true}

// normalize validates in for variant t and fills defaults
func (in *Input) normalize(t model.HostType) error {
	if t.HasDomains() {
		domains, err := domainutil.NormalizeList(in.DomainNames)
		if err != nil {
			return apperr.ValidationWrap(err, "invalid domain names")
		}
		if len(domains) == 0 {
			return apperr.Validation("at least one domain name is required")
		}
		in.DomainNames = domains
	} else {
		in.DomainNames = nil
		in.CertificateID = CertificateRef{}
	}

	switch t {
	case model.HostTypeProxy:
		if in.ForwardScheme == "" {
			in.ForwardScheme = "http"
		}
		if in.ForwardScheme != "http" && in.ForwardScheme != "https" {
			return apperr.Validation("forward_scheme must be http or https")
		}
		if strings.TrimSpace(in.ForwardHost) == "" {
			return apperr.Validation("forward_host is required")
		}
		if !validPort(in.ForwardPort) {
			return apperr.Validation("forward_port must be between 1 and 65535")
		}
		for i, loc := range in.Locations {
			if !strings.HasPrefix(loc.Path, "/") {
				return apperr.Validation("location %d: path must start with /", i)
			}
			if loc.ForwardHost == "" || !validPort(loc.ForwardPort) {
				return apperr.Validation("location %s: forward_host and forward_port are required", loc.Path)
			}
			if in.Locations[i].ForwardScheme == "" {
				in.Locations[i].ForwardScheme = "http"
			}
		}
	case model.HostTypeRedirection:
		if in.ForwardScheme == "" {
			in.ForwardScheme = "auto"
		}
		if strings.TrimSpace(in.ForwardDomainName) == "" {
			return apperr.Validation("forward_domain_name is required")
		}
		if in.ForwardHTTPCode == 0 {
			in.ForwardHTTPCode = 301
		}
		if !redirectCodes[in.ForwardHTTPCode] {
			return apperr.Validation("forward_http_code %d is not a redirect code", in.ForwardHTTPCode)
		}
	case model.HostTypeStream:
		if !validPort(in.IncomingPort) {
			return apperr.Validation("incoming_port must be between 1 and 65535")
		}
		if strings.TrimSpace(in.ForwardHost) == "" || !validPort(in.ForwardPort) {
			return apperr.Validation("forward_host and forward_port are required")
		}
		if !in.TCPForwarding && !in.UDPForwarding {
			return apperr.Validation("at least one of tcp_forwarding and udp_forwarding must be enabled")
		}
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// apply copies in onto h. Enabled and Meta are left to the caller.
func (in *Input) apply(h *model.Host) {
	h.DomainNames = in.DomainNames
	if in.CertificateID.ID > 0 {
		h.CertificateID = model.UPtr(in.CertificateID.ID)
	} else if !in.CertificateID.New {
		h.CertificateID = nil
	}
	h.AdvancedConfig = in.AdvancedConfig
	h.SSLForced = in.SSLForced
	h.HTTP2Support = in.HTTP2Support
	h.HSTSEnabled = in.HSTSEnabled
	h.HSTSSubdomains = in.HSTSSubdomains
	h.ForwardScheme = in.ForwardScheme
	h.ForwardHost = strings.TrimSpace(in.ForwardHost)
	h.ForwardPort = in.ForwardPort
	h.Locations = in.Locations
	h.CachingEnabled = in.CachingEnabled
	h.BlockExploits = in.BlockExploits
	h.AllowWebsocketUpgrade = in.AllowWebsocketUpgrade
	h.ForwardDomainName = strings.TrimSpace(in.ForwardDomainName)
	h.ForwardHTTPCode = in.ForwardHTTPCode
	h.PreservePath = in.PreservePath
	h.IncomingPort = in.IncomingPort
	h.TCPForwarding = in.TCPForwarding
	h.UDPForwarding = in.UDPForwarding
}

// quickCertificateMeta reads the Let's Encrypt hints a host request may
// carry in its meta
func quickCertificateMeta(meta map[string]interface{}) (model.CertificateMeta, error) {
	var out model.CertificateMeta
	if len(meta) == 0 {
		return out, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, apperr.ValidationWrap(err, "invalid certificate settings in meta")
	}
	// never taken from a host request
	out.Certificate, out.CertificateKey, out.IntermediateCertificate = "", "", ""
	return out, nil
}
