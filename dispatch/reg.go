package dispatch

import (
	"errors"
	"fmt"

	"github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/log/logkeys"
	"github.com/micromdm/nanoflow/session"
)

// ErrDuplicateRegistration is returned when a name or SessionID is already bound.
var ErrDuplicateRegistration = errors.New("duplicate registration")

// RegisterWellKnown binds handler to the fixed SessionID sid.
func (d *Dispatcher) RegisterWellKnown(sid session.ID, handler flow.WellKnownFlow) error {
	if sid.IsZero() {
		return session.ErrInvalidAddress
	}
	if handler == nil {
		return errors.New("nil handler")
	}
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	if _, ok := d.wellKnown[sid]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, sid)
	}
	d.wellKnown[sid] = handler
	d.logger.Debug(logkeys.Message, "registered well-known flow", logkeys.SessionID, sid.String())
	return nil
}

// RegisterFlow associates resumable flow f with the dispatcher by name.
func (d *Dispatcher) RegisterFlow(f flow.Flow) error {
	if f == nil {
		return errors.New("nil flow")
	}
	name := f.Name()
	if name == "" {
		return errors.New("empty flow name")
	}
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	if _, ok := d.flows[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, name)
	}
	d.flows[name] = f
	d.logger.Debug(logkeys.Message, "registered flow", logkeys.FlowName, name)
	return nil
}

// Flow returns the registered resumable flow named name.
func (d *Dispatcher) Flow(name string) flow.Flow {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	return d.flows[name]
}

func (d *Dispatcher) wellKnownFlow(sid session.ID) flow.WellKnownFlow {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	return d.wellKnown[sid]
}
