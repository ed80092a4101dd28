// Package pulse implements an event publisher backed by a Pulse stream on Redis.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/micromdm/nanoflow/log/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// DefaultStream is the default stream name.
const DefaultStream = "nanoflow-events"

// Publisher adds published payloads to a Pulse stream.
// The topic becomes the Pulse event name.
type Publisher struct {
	stream  *streaming.Stream
	timeout time.Duration
	logger  log.Logger
}

type config struct {
	name    string
	maxLen  int
	timeout time.Duration
	logger  log.Logger
}

// Options configure the publisher.
type Option func(*config)

// WithStreamName sets the stream name.
func WithStreamName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithStreamMaxLen bounds the number of entries kept in the stream.
func WithStreamMaxLen(n int) Option {
	return func(c *config) {
		c.maxLen = n
	}
}

// WithTimeout bounds individual add operations.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLogger sets the publisher logger.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New creates a new publisher on the caller-owned Redis client.
func New(rdb *redis.Client, opts ...Option) (*Publisher, error) {
	if rdb == nil {
		return nil, errors.New("nil redis client")
	}
	cfg := &config{name: DefaultStream, logger: log.NopLogger}
	for _, opt := range opts {
		opt(cfg)
	}
	var streamOpts []streamopts.Stream
	if cfg.maxLen > 0 {
		streamOpts = append(streamOpts, streamopts.WithStreamMaxLen(cfg.maxLen))
	}
	s, err := streaming.NewStream(cfg.name, rdb, streamOpts...)
	if err != nil {
		return nil, fmt.Errorf("create pulse stream: %w", err)
	}
	return &Publisher{stream: s, timeout: cfg.timeout, logger: cfg.logger}, nil
}

// Publish implements the event publisher interface.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errors.New("empty topic")
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	id, err := p.stream.Add(ctx, topic, payload)
	if err != nil {
		return fmt.Errorf("pulse add: %w", err)
	}
	ctxlog.Logger(ctx, p.logger).Debug(
		logkeys.Message, "published event",
		logkeys.Topic, topic,
		"event_id", id,
	)
	return nil
}
