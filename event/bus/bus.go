// Package bus implements an in-process event publisher.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/micromdm/nanoflow/log/logkeys"
	"github.com/micromdm/nanoflow/utils/uuid"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Event is a published payload.
type Event struct {
	ID        string
	Topic     string
	Payload   []byte
	Published time.Time
}

// Handlers receive events for the topics they subscribe to.
type Handler func(ctx context.Context, e *Event) error

// Bus dispatches published events to subscribed handlers synchronously.
// Handler errors are logged and do not stop delivery to other handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	ider   uuid.IDer
	logger log.Logger
}

// Options configure the bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger log.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithIDer sets the event ID generator.
func WithIDer(ider uuid.IDer) Option {
	return func(b *Bus) {
		b.ider = ider
	}
}

// New creates a new event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]Handler),
		ider:     uuid.NewUUID(),
		logger:   log.NopLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers payload to the handlers of topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errors.New("empty topic")
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	e := &Event{
		ID:        b.ider.ID(),
		Topic:     topic,
		Payload:   payload,
		Published: time.Now(),
	}
	logger := ctxlog.Logger(ctx, b.logger).With(logkeys.Topic, topic, "event_id", e.ID)
	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			logger.Info(logkeys.Message, "event handler", logkeys.Error, err)
		}
	}
	logger.Debug(logkeys.Message, "published event", logkeys.GenericCount, len(handlers))
	return nil
}
