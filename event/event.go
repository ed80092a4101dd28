// Package event defines the event publisher used to announce flow results.
package event

import "context"

// TopicClientEnrollment is published with the client identity once a client enrolls.
const TopicClientEnrollment = "ClientEnrollment"

// Publishers publish payloads to named topics.
// Publishing is fire-and-forget from the publisher's perspective.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Multi publishes to every publisher in order.
// The first error is returned after all publishers are tried.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, topic string, payload []byte) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, topic, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
