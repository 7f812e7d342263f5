package model

import (
	"fmt"

	"gorm.io/datatypes"
)

// HostType is the routing variant of a host
type HostType string

// Host variants
const (
	HostTypeProxy       HostType = "proxy_host"
	HostTypeRedirection HostType = "redirection_host"
	HostTypeDead        HostType = "dead_host"
	HostTypeStream      HostType = "stream"
)

// DomainHostTypes lists the variants that claim domain names, in the order
// they are paused and resumed.
var DomainHostTypes = []HostType{HostTypeProxy, HostTypeRedirection, HostTypeDead}

// ParseHostType accepts both "proxy_host" and the short/hyphenated forms
// ("proxy", "proxy-host").
func ParseHostType(s string) (HostType, error) {
	switch s {
	case "proxy", "proxy_host", "proxy-host", "proxy_hosts", "proxy-hosts":
		return HostTypeProxy, nil
	case "redirection", "redirection_host", "redirection-host", "redirection_hosts", "redirection-hosts":
		return HostTypeRedirection, nil
	case "dead", "dead_host", "dead-host", "dead_hosts", "dead-hosts":
		return HostTypeDead, nil
	case "stream", "streams":
		return HostTypeStream, nil
	}
	return "", fmt.Errorf("unknown host type %q", s)
}

// HasDomains reports whether hosts of this type carry domain names
func (t HostType) HasDomains() bool {
	return t != HostTypeStream
}

// ConfigState is the reconciliation state of a host's nginx config
type ConfigState string

const (
	ConfigStateNone   ConfigState = "no_config"
	ConfigStateActive ConfigState = "active"
	ConfigStateError  ConfigState = "error"
)

// Meta keys written by the reconciler
const (
	MetaNginxOnline = "nginx_online"
	MetaNginxErr    = "nginx_err"
)

// HostRef identifies a host by variant and id
type HostRef struct {
	Type HostType
	ID   int
}

func (r HostRef) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.ID)
}

// Location is a custom location block of a proxy host
type Location struct {
	Path           string `json:"path"`
	ForwardScheme  string `json:"forward_scheme"`
	ForwardHost    string `json:"forward_host"`
	ForwardPort    int    `json:"forward_port"`
	AdvancedConfig string `json:"advanced_config"`
}

// Host is a routing entry served by nginx
type Host struct {
	BaseModel
	Type           HostType                    `gorm:"type:varchar(32);not null;index" json:"type"`
	DomainNames    datatypes.JSONSlice[string] `gorm:"type:json" json:"domain_names"`
	CertificateID  *int                        `gorm:"index" json:"certificate_id"`
	Certificate    *Certificate                `gorm:"foreignKey:CertificateID" json:"certificate,omitempty"`
	Enabled        bool                        `gorm:"not null" json:"enabled"`
	IsDeleted      bool                        `gorm:"not null;default:false;index" json:"-"`
	Meta           datatypes.JSONMap           `gorm:"type:json" json:"meta"`
	ConfigState    ConfigState                 `gorm:"type:varchar(16);not null;default:no_config" json:"config_state"`
	ConfigPath     string                      `gorm:"type:varchar(512)" json:"config_path"`
	AdvancedConfig string                      `gorm:"type:text" json:"advanced_config"`

	// TLS
	SSLForced      bool `json:"ssl_forced"`
	HTTP2Support   bool `json:"http2_support"`
	HSTSEnabled    bool `json:"hsts_enabled"`
	HSTSSubdomains bool `json:"hsts_subdomains"`

	// proxy_host, stream
	ForwardScheme         string                        `gorm:"type:varchar(32)" json:"forward_scheme"`
	ForwardHost           string                        `gorm:"type:varchar(255)" json:"forward_host"`
	ForwardPort           int                           `json:"forward_port"`
	Locations             datatypes.JSONSlice[Location] `gorm:"type:json" json:"locations"`
	CachingEnabled        bool                          `json:"caching_enabled"`
	BlockExploits         bool                          `json:"block_exploits"`
	AllowWebsocketUpgrade bool                          `json:"allow_websocket_upgrade"`

	// redirection_host
	ForwardDomainName string `gorm:"type:varchar(255)" json:"forward_domain_name"`
	ForwardHTTPCode   int    `json:"forward_http_code"`
	PreservePath      bool   `json:"preserve_path"`

	// stream
	IncomingPort  int  `json:"incoming_port"`
	TCPForwarding bool `json:"tcp_forwarding"`
	UDPForwarding bool `json:"udp_forwarding"`
}

// TableName specifies the table name for Host
func (Host) TableName() string {
	return "hosts"
}

// Ref returns the host's (type, id) pair
func (h *Host) Ref() HostRef {
	return HostRef{Type: h.Type, ID: h.ID}
}

// CleanSSLHSTS keeps the TLS flags consistent: without a certificate there is
// no forced SSL or HTTP/2, without forced SSL no HSTS, without HSTS no
// subdomain HSTS.
func (h *Host) CleanSSLHSTS() {
	if h.CertificateID == nil || *h.CertificateID == 0 {
		h.CertificateID = nil
		h.SSLForced = false
		h.HTTP2Support = false
	}
	if !h.SSLForced {
		h.HSTSEnabled = false
	}
	if !h.HSTSEnabled {
		h.HSTSSubdomains = false
	}
}

// Redacted returns a copy whose preloaded certificate carries no secrets
func (h *Host) Redacted() *Host {
	out := *h
	out.Certificate = h.Certificate.Redacted()
	return &out
}
