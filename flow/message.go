package flow

// Message is an inbound agent message.
// Messages are unauthenticated at this layer: Source is only a claim.
type Message struct {
	// Destination is the raw SessionID the message is addressed to.
	Destination string

	// Source is the claimed client identity of the sender.
	Source string

	// PayloadType names the payload encoding (e.g. "Credential").
	PayloadType string

	Payload []byte
}
