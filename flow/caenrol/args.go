package caenrol

import (
	"errors"
	"fmt"

	"github.com/micromdm/nanoflow/ca"
	"github.com/micromdm/nanoflow/flow"
)

var (
	ErrMalformedRequest            = errors.New("malformed request")
	ErrSignatureVerificationFailed = ca.ErrSignatureVerificationFailed
	ErrIdentityMismatch            = errors.New("identity mismatch")
)

// state attribute names
const (
	attrCSR     = "csr"
	attrCSRType = "type"
	attrCSRPEM  = "pem"
	attrCN      = "cn"
	attrCert    = "cert"
)

// NewArgs creates the start arguments of a flow instance from an agent credential.
func NewArgs(cred *ca.Credential) (*flow.State, error) {
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	csr := flow.NewState()
	if err := csr.Register(attrCSRType, flow.StringValue(cred.Type)); err != nil {
		return nil, err
	}
	if err := csr.Register(attrCSRPEM, flow.BytesValue([]byte(cred.PEM))); err != nil {
		return nil, err
	}
	args := flow.NewState()
	return args, args.Register(attrCSR, flow.RecordValue(csr))
}

// credential extracts the request credential from the instance state.
func credential(s *flow.State) (typ string, pem []byte, err error) {
	csr, err := s.GetRecord(attrCSR)
	if err != nil {
		return "", nil, err
	}
	if typ, err = csr.GetString(attrCSRType); err != nil {
		return "", nil, err
	}
	pem, err = csr.GetBytes(attrCSRPEM)
	return typ, pem, err
}

// put sets the named attribute, registering it first if needed.
func put(s *flow.State, name string, v flow.Value) error {
	if s.Has(name) {
		return s.Set(name, v)
	}
	return s.Register(name, v)
}
