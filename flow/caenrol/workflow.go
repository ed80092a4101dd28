// Package caenrol implements the certificate authority enrollment flow.
//
// A CAEnroler instance is started for a client identity with the agent's
// certificate-signing request. It verifies the request, binds the
// identity derived from the request public key to the client identity
// the instance was addressed for, issues a client certificate and
// records it in the identity index. Any verification failure is a
// permanent rejection: nothing is issued and nothing is published.
package caenrol

import (
	"context"
	"crypto"
	"crypto/x509"
	"time"

	"github.com/micromdm/nanoflow/event"

	"github.com/micromdm/nanolib/log"
)

const DefaultFlowName = "CAEnroler"

// Authority verifies requests and issues client certificates.
type Authority interface {
	VerifySelfSignature(csr *x509.CertificateRequest) error
	DeriveIdentity(pub crypto.PublicKey) (string, error)
	IssueCertificate(identity string, csr *x509.CertificateRequest) (*x509.Certificate, error)
}

// IdentityStore records issued certificates.
type IdentityStore interface {
	// StoreCertificate must be durable when it returns.
	StoreCertificate(ctx context.Context, id string, cert []byte, firstSeen time.Time) error
}

// Workflow is the CA enrollment flow.
type Workflow struct {
	name      string
	authority Authority
	store     IdentityStore
	publisher event.Publisher
	logger    log.Logger
	now       func() time.Time
}

type Option func(*Workflow)

// WithLogger configures logger on the flow.
func WithLogger(logger log.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithName sets the flow name. If not set a default will be used.
func WithName(name string) Option {
	return func(w *Workflow) {
		w.name = name
	}
}

// WithClock sets the time source for first-seen times.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

func New(authority Authority, store IdentityStore, publisher event.Publisher, opts ...Option) *Workflow {
	if authority == nil {
		panic("nil authority")
	}
	if store == nil {
		panic("nil store")
	}
	if publisher == nil {
		panic("nil publisher")
	}
	w := &Workflow{
		name:      DefaultFlowName,
		authority: authority,
		store:     store,
		publisher: publisher,
		logger:    log.NopLogger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the flow name.
func (w *Workflow) Name() string {
	return w.name
}
