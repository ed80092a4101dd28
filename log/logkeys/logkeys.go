// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// an agent (client) identity. i.e. "C.1a2b3c4d5e6f7a8b"
	ClientID = "client_id"

	// the destination SessionID of a message or flow instance
	SessionID = "session_id"

	FlowName  = "flow_name"
	StateName = "state_name"
	Status    = "status"

	// the kind of handler a message was dispatched to
	HandlerKind = "handler_kind"

	Topic = "topic"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
