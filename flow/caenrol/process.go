package caenrol

import (
	"context"
	"errors"
	"fmt"

	"github.com/micromdm/nanoflow/ca"
	"github.com/micromdm/nanoflow/event"
	"github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/log/logkeys"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// Start verifies the request and enrolls the client.
func (w *Workflow) Start(ctx context.Context, run *flow.Run) error {
	logger := ctxlog.Logger(ctx, w.logger).With(
		logkeys.SessionID, run.SessionID.String(),
		logkeys.ClientID, run.ClientID,
	)

	typ, pemBytes, err := credential(run.State)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if typ != ca.TypeCSR {
		return fmt.Errorf("%w: must be called with CSR: have %q", ErrMalformedRequest, typ)
	}
	csr, err := ca.ParseCSR(pemBytes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	if err = w.authority.VerifySelfSignature(csr); err != nil {
		if !errors.Is(err, ErrSignatureVerificationFailed) {
			err = fmt.Errorf("%w: %w", ErrSignatureVerificationFailed, err)
		}
		return err
	}

	cn, err := w.authority.DeriveIdentity(csr.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: deriving identity: %w", ErrMalformedRequest, err)
	}
	if err = put(run.State, attrCN, flow.StringValue(cn)); err != nil {
		return err
	}
	if cn != csr.Subject.CommonName {
		return fmt.Errorf("%w: CSR CN %q does not match public key %q", ErrIdentityMismatch, csr.Subject.CommonName, cn)
	}
	if cn != run.ClientID {
		return fmt.Errorf("%w: CSR CN %q does not match client ID %q", ErrIdentityMismatch, cn, run.ClientID)
	}

	cert, err := w.authority.IssueCertificate(cn, csr)
	if err != nil {
		return fmt.Errorf("issuing certificate: %w", err)
	}
	if err = put(run.State, attrCert, flow.BytesValue(cert.Raw)); err != nil {
		return err
	}

	// the commit and announcement run to completion once started
	ctx = context.WithoutCancel(ctx)

	if err = w.store.StoreCertificate(ctx, run.ClientID, cert.Raw, w.now()); err != nil {
		return fmt.Errorf("storing certificate: %w", err)
	}

	if err = w.publisher.Publish(ctx, event.TopicClientEnrollment, []byte(run.ClientID)); err != nil {
		return fmt.Errorf("publishing enrollment: %w", err)
	}

	run.Log("Enrolled %s successfully", run.ClientID)
	logger.Info(logkeys.Message, "enrolled client")
	return nil
}

// Resume is a stub handler for the flow interface.
// Enrollment completes in its start state.
func (w *Workflow) Resume(_ context.Context, state string, _ *flow.Run, _ *flow.Message) error {
	return flow.NewErrUnknownState(state)
}
