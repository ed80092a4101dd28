/*
Package flow defines flow interfaces, types, and primitives.

# Flows

Flows are resumable, addressable units of server-side work performed on
behalf of (or about) a remote agent. Every flow instance is named by a
SessionID (see the session package) of the form queue:flow_id. Inbound
agent messages carry a destination SessionID and the dispatcher uses
that address to find the flow instance the message is intended for.

Flows are identified by names. Names must be unique amongst the flows
registered with a dispatcher. The name is recorded with every flow
instance so that a later message can be "routed" back to the right
flow kind.

# States

A flow instance is always at a named state. A newly started instance
runs its Start method immediately. When the flow needs to wait for an
agent reply it calls CallState on the Run with the name of the state
that should handle the next inbound message and returns. When that
message arrives the dispatcher calls Resume with that state name.

A flow that returns without calling CallState is completed. A flow that
returns an error is failed and the error text is recorded as the
failure reason for operator visibility. Completed and failed instances
no longer receive messages.

# State attributes

Every instance carries a State: an ordered set of named, typed
attributes. Attributes must be registered before they are read or
written and reading an attribute that was never registered is an error
rather than a silent default. Values are a tagged variant over string,
bytes, integer and nested record kinds. The State is serialized to the
flow store every time the instance suspends and restored when it
resumes.

# Well-known flows

Well-known flows are bound to a fixed, predictable SessionID and are
invoked without any persisted state for unsolicited inbound messages
(enrollment being the canonical example). They frequently start new
resumable flow instances themselves.

# Process model

No assumptions should be made about the state of the flow object
receiving method calls. Assume it is shared and that its methods are
called concurrently for different instances. The dispatcher serializes
calls for a single instance. Keep per-instance data in the State.
*/
package flow
