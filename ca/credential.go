package ca

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypeCSR is the credential type of a certificate-signing request.
const TypeCSR = "CSR"

var ErrInvalidCredential = errors.New("invalid credential")

// Credential is a typed PEM credential presented by an agent.
type Credential struct {
	Type string `json:"type"`
	PEM  string `json:"pem"`
}

// Validate checks for missing values.
func (c *Credential) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCredential)
	}
	if c.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidCredential)
	}
	if c.PEM == "" {
		return fmt.Errorf("%w: missing pem", ErrInvalidCredential)
	}
	return nil
}

// ParseCredential decodes a JSON credential.
func ParseCredential(data []byte) (*Credential, error) {
	c := new(Credential)
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return c, c.Validate()
}

// MarshalBinary encodes c as JSON.
func (c *Credential) MarshalBinary() ([]byte, error) {
	if c == nil {
		return nil, errors.New("nil value")
	}
	return json.Marshal(c)
}

// UnmarshalBinary decodes JSON data into c.
func (c *Credential) UnmarshalBinary(data []byte) error {
	if c == nil {
		return errors.New("nil value")
	}
	return json.Unmarshal(data, c)
}
