package flow

import (
	"fmt"

	"github.com/micromdm/nanoflow/session"
)

// Run is a single invocation of a flow instance state.
type Run struct {
	// SessionID addresses the flow instance.
	SessionID session.ID

	// ClientID is the client identity the instance was started for.
	ClientID string

	// State holds the instance attributes. It is persisted after the run.
	State *State

	next string
	logs []string
}

// NewRun creates a new run for an instance.
func NewRun(id session.ID, clientID string, state *State) *Run {
	if state == nil {
		state = NewState()
	}
	return &Run{SessionID: id, ClientID: clientID, State: state}
}

// CallState suspends the instance once the current state returns.
// The next message addressed to the instance is handled by the named state.
func (r *Run) CallState(name string) {
	r.next = name
}

// NextState returns the state set by CallState, if any.
func (r *Run) NextState() string {
	return r.next
}

// Log records a human-readable line against the flow instance.
func (r *Run) Log(format string, args ...interface{}) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

// Logs returns the lines recorded during this run.
func (r *Run) Logs() []string {
	return r.logs
}
