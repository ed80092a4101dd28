// Package dispatch routes inbound agent messages to flows.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/micromdm/nanoflow/dispatch/storage"
	"github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/log/logkeys"
	"github.com/micromdm/nanoflow/session"
	"github.com/micromdm/nanoflow/utils/uuid"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	// ErrUnroutableMessage is returned when a message cannot be delivered.
	ErrUnroutableMessage = errors.New("unroutable message")

	ErrNoSuchFlow = errors.New("no such flow")
)

func newErrUnroutable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnroutableMessage, err)
}

// Disposition is what happened to a routed message.
type Disposition uint

const (
	// Rejected messages were not delivered to any handler.
	Rejected Disposition = iota

	// Handled messages were delivered to a handler.
	// The handler may still have failed; see the Outcome error.
	Handled
)

func (d Disposition) String() string {
	if d == Handled {
		return "handled"
	}
	return "rejected"
}

// Outcome is the result of routing a message or starting a flow.
type Outcome struct {
	Disposition Disposition
	HandlerKind flow.HandlerKind

	// SessionID is the flow instance (or well-known address) handling the message.
	SessionID session.ID

	// Status is the resulting flow instance status.
	// Unset for well-known handlers and rejected messages.
	Status flow.Status

	// Err is the rejection or failure reason, if any.
	Err error
}

// Dispatcher routes messages to well-known and resumable flows.
type Dispatcher struct {
	handlersMu sync.RWMutex
	wellKnown  map[session.ID]flow.WellKnownFlow
	flows      map[string]flow.Flow

	storage storage.Storage
	logger  log.Logger
	ider    uuid.IDer
	now     func() time.Time
}

// Options configure the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithIDer sets the generator of new flow IDs.
func WithIDer(ider uuid.IDer) Option {
	return func(d *Dispatcher) {
		d.ider = ider
	}
}

// WithClock sets the time source for instance timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a new dispatcher backed by the flow store.
func New(store storage.Storage, opts ...Option) *Dispatcher {
	if store == nil {
		panic("nil store")
	}
	d := &Dispatcher{
		wellKnown: make(map[session.ID]flow.WellKnownFlow),
		flows:     make(map[string]flow.Flow),
		storage:   store,
		logger:    log.NopLogger,
		ider:      uuid.NewFlowIDs(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Route delivers msg to the handler for its destination SessionID.
// Route never returns a nil Outcome.
func (d *Dispatcher) Route(ctx context.Context, msg *flow.Message) *Outcome {
	logger := ctxlog.Logger(ctx, d.logger)
	if msg == nil {
		return &Outcome{Err: newErrUnroutable(errors.New("nil message"))}
	}
	logger = logger.With(logkeys.ClientID, msg.Source)

	sid, err := session.Parse(msg.Destination)
	if err != nil {
		out := &Outcome{Err: newErrUnroutable(err)}
		logger.Info(logkeys.Message, "rejected message", logkeys.Error, out.Err)
		return out
	}
	logger = logger.With(logkeys.SessionID, sid.String())

	if h := d.wellKnownFlow(sid); h != nil {
		out := &Outcome{
			Disposition: Handled,
			HandlerKind: flow.HandlerWellKnown,
			SessionID:   sid,
		}
		if out.Err = h.ProcessMessage(ctx, msg); out.Err != nil {
			logger.Info(logkeys.Message, "well-known flow", logkeys.Error, out.Err)
		} else {
			logger.Debug(logkeys.Message, "well-known flow processed message")
		}
		return out
	}

	return d.resume(ctx, logger, sid, msg)
}

// resume runs the next state of the flow instance at sid with msg.
func (d *Dispatcher) resume(ctx context.Context, logger log.Logger, sid session.ID, msg *flow.Message) *Outcome {
	out := &Outcome{HandlerKind: flow.HandlerResumable, SessionID: sid}

	unlock, err := d.storage.Lock(ctx, sid.String())
	if err != nil {
		out.Err = fmt.Errorf("locking session: %w", err)
		logger.Info(logkeys.Message, "rejected message", logkeys.Error, out.Err)
		return out
	}
	defer unlock()

	inst, err := d.storage.Load(ctx, sid.String())
	if errors.Is(err, storage.ErrInstanceNotFound) {
		out.Err = newErrUnroutable(err)
	} else if err != nil {
		out.Err = fmt.Errorf("loading instance: %w", err)
	} else if status := flow.StatusForString(inst.Status); status != flow.StatusRunning {
		out.Status = status
		out.Err = newErrUnroutable(fmt.Errorf("flow instance is %s", inst.Status))
	}
	if out.Err != nil {
		logger.Info(logkeys.Message, "rejected message", logkeys.Error, out.Err)
		return out
	}

	logger = logger.With(logkeys.FlowName, inst.Kind, logkeys.StateName, inst.NextState)
	f := d.Flow(inst.Kind)
	if f == nil {
		out.Err = newErrUnroutable(fmt.Errorf("%w: %s", ErrNoSuchFlow, inst.Kind))
		logger.Info(logkeys.Message, "rejected message", logkeys.Error, out.Err)
		return out
	}

	run, err := runFromInstance(inst)
	if err != nil {
		out.Err = fmt.Errorf("restoring run: %w", err)
		logger.Info(logkeys.Message, "rejected message", logkeys.Error, out.Err)
		return out
	}

	out.Disposition = Handled
	runErr := f.Resume(ctx, inst.NextState, run, msg)
	if err = d.finish(ctx, logger, inst, run, runErr, out); err != nil {
		out.Err = err
	}
	return out
}

// finish records the result of a flow run on inst and persists it.
// The returned error is for failures to persist the run.
func (d *Dispatcher) finish(ctx context.Context, logger log.Logger, inst *storage.Instance, run *flow.Run, runErr error, out *Outcome) error {
	out.Err = runErr
	if err := applyRun(inst, run, runErr, d.now()); err != nil {
		logger.Info(logkeys.Message, "applying flow run", logkeys.Error, err)
		return err
	}
	if err := d.storage.Save(ctx, inst); err != nil {
		logger.Info(logkeys.Message, "saving flow instance", logkeys.Error, err)
		return fmt.Errorf("saving instance: %w", err)
	}
	out.Status = flow.StatusForString(inst.Status)

	if runErr != nil {
		logger.Info(
			logkeys.Message, "flow failed",
			logkeys.Status, inst.Status,
			logkeys.Error, runErr,
		)
	} else {
		logger.Debug(
			logkeys.Message, "flow ran",
			logkeys.Status, inst.Status,
			logkeys.StateName, inst.NextState,
		)
	}
	return nil
}

// maxIDAttempts bounds fresh session IDs tried when creating an instance.
const maxIDAttempts = 3

// create persists inst under a new session ID in queue and returns it
// locked. A taken ID is retried with a fresh one.
func (d *Dispatcher) create(ctx context.Context, queue string, inst *storage.Instance) (session.ID, func(), error) {
	var err error
	for i := 0; i < maxIDAttempts; i++ {
		var sid session.ID
		sid, err = session.New(queue, d.ider.ID())
		if err != nil {
			return sid, nil, fmt.Errorf("new session id: %w", err)
		}
		inst.SessionID = sid.String()

		unlock, lerr := d.storage.Lock(ctx, inst.SessionID)
		if lerr != nil {
			return sid, nil, fmt.Errorf("locking session: %w", lerr)
		}
		if err = d.storage.CreateInstance(ctx, inst); err == nil {
			return sid, unlock, nil
		}
		unlock()
		if !errors.Is(err, storage.ErrInstanceExists) {
			break
		}
	}
	return session.ID{}, nil, fmt.Errorf("creating instance: %w", err)
}

// StartFlow creates a new instance of the named flow in queue for clientID
// and runs its entry state. The returned error is for infrastructure
// failures only; flow failures are reported on the Outcome.
func (d *Dispatcher) StartFlow(ctx context.Context, name, queue, clientID string, args *flow.State) (*Outcome, error) {
	f := d.Flow(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchFlow, name)
	}

	if args == nil {
		args = flow.NewState()
	}
	stateBytes, err := args.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	now := d.now()
	inst := &storage.Instance{
		Kind:      name,
		ClientID:  clientID,
		Status:    flow.StatusRunning.String(),
		State:     stateBytes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sid, unlock, err := d.create(ctx, queue, inst)
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := ctxlog.Logger(ctx, d.logger).With(
		logkeys.SessionID, sid.String(),
		logkeys.FlowName, name,
		logkeys.ClientID, clientID,
	)
	logger.Debug(logkeys.Message, "starting flow")

	// run from the persisted form so the flow sees what a resume would
	run, err := runFromInstance(inst)
	if err != nil {
		return nil, fmt.Errorf("restoring run: %w", err)
	}

	out := &Outcome{
		Disposition: Handled,
		HandlerKind: flow.HandlerResumable,
		SessionID:   sid,
	}
	if err = d.finish(ctx, logger, inst, run, f.Start(ctx, run), out); err != nil {
		return out, err
	}
	return out, nil
}
