package flow

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownState is returned by flows asked to resume at a state they do not have.
var ErrUnknownState = errors.New("unknown state")

// NewErrUnknownState wraps ErrUnknownState with the state name.
func NewErrUnknownState(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownState, name)
}

// Namers provide a name string.
type Namer interface {
	// Name returns the name of the flow kind.
	// This string is recorded on flow instances and used to route
	// messages back to this flow.
	Name() string
}

// Flows are resumable units of work addressed by a SessionID.
type Flow interface {
	Namer

	// Start runs the entry state of a newly created flow instance.
	// The run State carries the arguments the flow was started with.
	Start(ctx context.Context, run *Run) error

	// Resume runs the named state of an existing instance with the
	// inbound message addressed to it.
	Resume(ctx context.Context, state string, run *Run, msg *Message) error
}

// WellKnownFlows handle unsolicited messages at a fixed SessionID.
// They have no persisted state.
type WellKnownFlow interface {
	ProcessMessage(ctx context.Context, msg *Message) error
}

// WellKnownFlowFunc adapts a function to a WellKnownFlow.
type WellKnownFlowFunc func(ctx context.Context, msg *Message) error

// ProcessMessage calls f(ctx, msg).
func (f WellKnownFlowFunc) ProcessMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// HandlerKind is the kind of handler a message was dispatched to.
type HandlerKind uint

const (
	HandlerNone HandlerKind = iota
	HandlerResumable
	HandlerWellKnown
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerResumable:
		return "resumable"
	case HandlerWellKnown:
		return "well-known"
	}
	return "none"
}

// Status is the status of a flow instance.
type Status uint

const (
	StatusUnknown Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	}
	return ""
}

// StatusForString returns the Status for s.
func StatusForString(s string) Status {
	switch s {
	case "RUNNING":
		return StatusRunning
	case "COMPLETED":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	}
	return StatusUnknown
}

// Terminal reports whether s no longer accepts messages.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
