// Package session implements the SessionID address scheme.
//
// A SessionID names every flow instance and every queue. Its canonical
// string form is queue:flow_id or queue:flow_id:suffix where every
// component is a non-empty token of letters, digits, '_' and '-'.
package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAddress is returned for any SessionID grammar violation.
var ErrInvalidAddress = errors.New("invalid address")

const sep = ":"

// ID is a parsed SessionID.
// It is comparable and may be used as a map key.
type ID struct {
	queue  string
	flowID string
	suffix string
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

func newErrInvalidAddress(raw, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalidAddress, raw, reason)
}

// Parse parses raw into an ID.
func Parse(raw string) (ID, error) {
	parts := strings.Split(raw, sep)
	if len(parts) < 2 || len(parts) > 3 {
		return ID{}, newErrInvalidAddress(raw, "wrong number of components")
	}
	for _, p := range parts {
		if !validToken(p) {
			return ID{}, newErrInvalidAddress(raw, "empty component or invalid character")
		}
	}
	id := ID{queue: parts[0], flowID: parts[1]}
	if len(parts) == 3 {
		id.suffix = parts[2]
	}
	return id, nil
}

// MustParse is like Parse but panics on error.
// It is intended for package-level well-known addresses.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// New creates an ID from queue and flowID.
func New(queue, flowID string) (ID, error) {
	return Parse(queue + sep + flowID)
}

// WithSuffix returns a copy of id with suffix set.
func (id ID) WithSuffix(suffix string) (ID, error) {
	if id.IsZero() {
		return ID{}, newErrInvalidAddress(suffix, "suffix on empty address")
	}
	if !validToken(suffix) {
		return ID{}, newErrInvalidAddress(suffix, "invalid suffix")
	}
	id.suffix = suffix
	return id, nil
}

// Queue returns the queue component.
func (id ID) Queue() string {
	return id.queue
}

// FlowID returns the flow ID component without any suffix.
func (id ID) FlowID() string {
	return id.flowID
}

// Suffix returns the suffix component, if any.
func (id ID) Suffix() string {
	return id.suffix
}

// FlowName returns everything after the queue.
// That is the flow ID or flow_id:suffix when a suffix is present.
func (id ID) FlowName() string {
	if id.suffix == "" {
		return id.flowID
	}
	return id.flowID + sep + id.suffix
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String formats id in its canonical form.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.queue + sep + id.FlowName()
}

// MarshalText encodes id in its canonical form.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses text into id.
func (id *ID) UnmarshalText(text []byte) error {
	if id == nil {
		return errors.New("nil value")
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
