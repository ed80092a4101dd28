// Package enrol implements the well-known enrollment flow.
//
// Agents send their certificate-signing request unsolicited to the
// well-known CA:Enrol address. The Enroler drops repeats for identities
// it has recently seen or that already have a certificate and otherwise
// starts a CAEnroler flow instance for the claimed identity.
package enrol

import (
	"context"
	"fmt"

	"github.com/micromdm/nanoflow/ca"
	"github.com/micromdm/nanoflow/dispatch"
	"github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/flow/caenrol"
	"github.com/micromdm/nanoflow/log/logkeys"
	"github.com/micromdm/nanoflow/session"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Queue is the enrollment queue.
const Queue = "CA"

// SessionID is the well-known enrollment address.
var SessionID = session.MustParse(Queue + ":Enrol")

// FlowStarters start new resumable flow instances.
type FlowStarter interface {
	StartFlow(ctx context.Context, name, queue, clientID string, args *flow.State) (*dispatch.Outcome, error)
}

// CertificateRetriever looks up issued certificates.
type CertificateRetriever interface {
	// RetrieveCertificate returns nil if no certificate was issued to id.
	RetrieveCertificate(ctx context.Context, id string) ([]byte, error)
}

// Enroler is the well-known enrollment handler.
type Enroler struct {
	cache    *Cache
	store    CertificateRetriever
	starter  FlowStarter
	flowName string
	queue    string
	logger   log.Logger
}

type Option func(*Enroler)

// WithLogger configures logger on the handler.
func WithLogger(logger log.Logger) Option {
	return func(e *Enroler) {
		e.logger = logger
	}
}

// WithFlowName sets the name of the enrollment flow to start.
func WithFlowName(name string) Option {
	return func(e *Enroler) {
		e.flowName = name
	}
}

// New creates a new enrollment handler.
func New(cache *Cache, store CertificateRetriever, starter FlowStarter, opts ...Option) *Enroler {
	if cache == nil {
		panic("nil cache")
	}
	if store == nil {
		panic("nil store")
	}
	if starter == nil {
		panic("nil starter")
	}
	e := &Enroler{
		cache:    cache,
		store:    store,
		starter:  starter,
		flowName: caenrol.DefaultFlowName,
		queue:    Queue,
		logger:   log.NopLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessMessage handles an unsolicited enrollment request.
// The message source is the claimed (untrusted) client identity.
func (e *Enroler) ProcessMessage(ctx context.Context, msg *flow.Message) error {
	if msg == nil || msg.Source == "" {
		return fmt.Errorf("%w: missing source", caenrol.ErrMalformedRequest)
	}
	if !ca.ValidIdentity(msg.Source) {
		return fmt.Errorf("%w: invalid source: %q", caenrol.ErrMalformedRequest, msg.Source)
	}
	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.ClientID, msg.Source)

	cred, err := ca.ParseCredential(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", caenrol.ErrMalformedRequest, err)
	}

	if !e.cache.TryMarkEnrolling(msg.Source) {
		logger.Debug(logkeys.Message, "enrollment recently initiated")
		return nil
	}

	cert, err := e.store.RetrieveCertificate(ctx, msg.Source)
	if err != nil {
		return fmt.Errorf("retrieving certificate: %w", err)
	}
	if cert != nil {
		logger.Debug(logkeys.Message, "already enrolled")
		return nil
	}

	args, err := caenrol.NewArgs(cred)
	if err != nil {
		return err
	}
	out, err := e.starter.StartFlow(ctx, e.flowName, e.queue, msg.Source, args)
	if err != nil {
		return fmt.Errorf("starting %s: %w", e.flowName, err)
	}
	logger.Debug(
		logkeys.Message, "started enrollment",
		logkeys.SessionID, out.SessionID.String(),
		logkeys.Status, out.Status.String(),
	)
	return nil
}
