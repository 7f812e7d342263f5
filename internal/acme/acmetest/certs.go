// Package acmetest generates certificate material for tests.
package acmetest

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
)

// SelfSigned returns a PEM certificate and key for domains valid in
// [notBefore, notAfter]. The first domain becomes the common name.
func SelfSigned(domains []string, notBefore, notAfter time.Time) (certPEM, keyPEM []byte, err error) {
	key, err := certcrypto.GeneratePrivateKey(certcrypto.EC256)
	if err != nil {
		return nil, nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, nil, errors.New("generated key is not a signer")
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domains[0]},
		Issuer:       pkix.Name{CommonName: "proxy_manager test CA"},
		DNSNames:     domains,
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), key)
	if err != nil {
		return nil, nil, err
	}
	return certcrypto.PEMEncode(certcrypto.DERCertificateBytes(der)), certcrypto.PEMEncode(key), nil
}
