package acme

import (
	"fmt"
	"os"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
)

// CertInfo is what the engine reads back from a certificate
type CertInfo struct {
	CN        string    `json:"cn"`
	Issuer    string    `json:"issuer"`
	DNSNames  []string  `json:"dns_names,omitempty"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

// ParseCertInfo reads the leaf certificate of a PEM bundle
func ParseCertInfo(pemBytes []byte) (*CertInfo, error) {
	cert, err := certcrypto.ParsePEMCertificate(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return &CertInfo{
		CN:        cert.Subject.CommonName,
		Issuer:    cert.Issuer.String(),
		DNSNames:  cert.DNSNames,
		NotBefore: cert.NotBefore.UTC(),
		NotAfter:  cert.NotAfter.UTC(),
	}, nil
}

// ReadCertInfo parses the certificate file at path
func ReadCertInfo(path string) (*CertInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	return ParseCertInfo(b)
}
