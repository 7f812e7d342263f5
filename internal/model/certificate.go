package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Certificate providers
const (
	CertificateProviderLetsEncrypt = "letsencrypt"
	CertificateProviderOther       = "other"
)

// Certificate status constants
const (
	CertificateStatusRequested = "requested"
	CertificateStatusActive    = "active"
	CertificateStatusRenewing  = "renewing"
	CertificateStatusRevoked   = "revoked"
)

// CertificateMeta carries the challenge settings of ACME certificates and the
// uploaded material of custom ones.
type CertificateMeta struct {
	LetsEncryptEmail       string `json:"letsencrypt_email,omitempty"`
	LetsEncryptAgree       bool   `json:"letsencrypt_agree,omitempty"`
	DNSChallenge           bool   `json:"dns_challenge,omitempty"`
	DNSProvider            string `json:"dns_provider,omitempty"`
	DNSProviderCredentials string `json:"dns_provider_credentials,omitempty"`
	PropagationSeconds     *int   `json:"propagation_seconds,omitempty"`

	Certificate             string `json:"certificate,omitempty"`
	CertificateKey          string `json:"certificate_key,omitempty"`
	IntermediateCertificate string `json:"intermediate_certificate,omitempty"`
}

// Certificate represents an SSL/TLS certificate
type Certificate struct {
	BaseModel
	Provider    string                              `gorm:"type:varchar(32);not null;index" json:"provider"`
	NiceName    string                              `gorm:"type:varchar(255)" json:"nice_name"`
	DomainNames datatypes.JSONSlice[string]         `gorm:"type:json" json:"domain_names"`
	Status      string                              `gorm:"type:varchar(20);not null;default:requested;index" json:"status"`
	ExpiresOn   *time.Time                          `gorm:"index" json:"expires_on"`
	IsDeleted   bool                                `gorm:"not null;default:false;index" json:"-"`
	Meta        datatypes.JSONType[CertificateMeta] `gorm:"type:json" json:"meta"`
}

// TableName specifies the table name for Certificate
func (Certificate) TableName() string {
	return "certificates"
}

// IsLetsEncrypt reports whether the certificate is issued through ACME
func (c *Certificate) IsLetsEncrypt() bool {
	return c.Provider == CertificateProviderLetsEncrypt
}

// Settings returns the decoded meta
func (c *Certificate) Settings() CertificateMeta {
	return c.Meta.Data()
}

// CertName is the on-disk name of the certificate material, e.g. "npm-7"
func (c *Certificate) CertName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, c.ID)
}

// Redacted returns a copy safe to hand to API clients: the private key and
// the DNS provider credentials are removed from meta.
func (c *Certificate) Redacted() *Certificate {
	if c == nil {
		return nil
	}
	out := *c
	meta := c.Settings()
	meta.CertificateKey = ""
	meta.DNSProviderCredentials = ""
	out.Meta = datatypes.NewJSONType(meta)
	return &out
}
