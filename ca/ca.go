// Package ca implements the enrollment certificate authority.
//
// The authority verifies agent certificate-signing requests, derives
// client identities from their public keys and issues client
// certificates bound to those identities.
package ca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/smallstep/pkcs7"
)

var (
	ErrInvalidPEM                  = errors.New("invalid PEM")
	ErrSignatureVerificationFailed = errors.New("signature verification failed")
)

// IdentityPrefix prefixes every client identity.
const IdentityPrefix = "C."

// DefaultValidity is the default validity of issued client certificates.
const DefaultValidity = 10 * 365 * 24 * time.Hour

// Authority signs client certificates with a CA keypair.
type Authority struct {
	cert     *x509.Certificate
	signer   crypto.Signer
	validity time.Duration
	now      func() time.Time
}

// Options configure the authority.
type Option func(*Authority)

// WithValidity sets the validity of issued client certificates.
func WithValidity(d time.Duration) Option {
	return func(a *Authority) {
		a.validity = d
	}
}

// WithClock sets the time source for certificate validity.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// New creates a new authority from a CA certificate and its key.
func New(cert *x509.Certificate, signer crypto.Signer, opts ...Option) *Authority {
	if cert == nil || signer == nil {
		panic("nil certificate or signer")
	}
	a := &Authority{
		cert:     cert,
		signer:   signer,
		validity: DefaultValidity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LoadAuthority creates a new authority from PEM certificate and key files.
func LoadAuthority(certFile, keyFile string, opts ...Option) (*Authority, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading CA keypair: %w", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing CA certificate: %w", err)
	}
	signer, ok := pair.PrivateKey.(crypto.Signer)
	if !ok {
		return nil, errors.New("CA key is not a signer")
	}
	return New(cert, signer, opts...), nil
}

func randomSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

// GenerateAuthority creates a new self-signed ECDSA P-256 authority.
func GenerateAuthority(cn string, opts ...Option) (*Authority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("generating serial: %w", err)
	}
	notBefore := time.Now().Add(-time.Minute)
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(DefaultValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return New(cert, key, opts...), nil
}

// Certificate returns the CA certificate.
func (a *Authority) Certificate() *x509.Certificate {
	return a.cert
}

// ParseCSR parses a PEM encoded certificate-signing request.
func ParseCSR(pemBytes []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	if block.Type != "CERTIFICATE REQUEST" && block.Type != "NEW CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("%w: unexpected block type: %s", ErrInvalidPEM, block.Type)
	}
	return x509.ParseCertificateRequest(block.Bytes)
}

// VerifySelfSignature checks the CSR is signed by its own public key.
func (a *Authority) VerifySelfSignature(csr *x509.CertificateRequest) error {
	if csr == nil {
		return fmt.Errorf("%w: nil request", ErrSignatureVerificationFailed)
	}
	if err := csr.CheckSignature(); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureVerificationFailed, err)
	}
	return nil
}

// DeriveIdentity maps a public key to its client identity.
// The identity is "C." followed by the hex of the first 8 bytes of the
// SHA-256 of the PKIX encoded key.
func (a *Authority) DeriveIdentity(pub crypto.PublicKey) (string, error) {
	return DeriveIdentity(pub)
}

// DeriveIdentity maps a public key to its client identity.
func DeriveIdentity(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return IdentityPrefix + hex.EncodeToString(sum[:8]), nil
}

// ValidIdentity reports whether id has the form produced by DeriveIdentity.
func ValidIdentity(id string) bool {
	hexID, ok := strings.CutPrefix(id, IdentityPrefix)
	if !ok || len(hexID) != 16 {
		return false
	}
	for _, c := range hexID {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IssueCertificate issues a client certificate for identity to the CSR public key.
func (a *Authority) IssueCertificate(identity string, csr *x509.CertificateRequest) (*x509.Certificate, error) {
	if identity == "" {
		return nil, errors.New("empty identity")
	}
	if csr == nil {
		return nil, errors.New("nil request")
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, fmt.Errorf("generating serial: %w", err)
	}
	notBefore := a.now().Add(-time.Minute)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: identity},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(a.validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, a.cert, csr.PublicKey, a.signer)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

// CertsOnly wraps DER certificates in a degenerate certs-only PKCS#7.
func CertsOnly(der ...[]byte) ([]byte, error) {
	var all []byte
	for _, d := range der {
		all = append(all, d...)
	}
	if len(all) < 1 {
		return nil, errors.New("no certificates")
	}
	return pkcs7.DegenerateCertificate(all)
}

// CreateCSR creates a PEM encoded certificate-signing request for cn signed by key.
// This is what an agent presents when enrolling.
func CreateCSR(key crypto.Signer, cn string) ([]byte, error) {
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: cn},
	}, key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
