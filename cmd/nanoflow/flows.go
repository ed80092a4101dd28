package main

import (
	"fmt"

	"github.com/micromdm/nanoflow/dispatch"
	"github.com/micromdm/nanoflow/event"
	"github.com/micromdm/nanoflow/flow/caenrol"
	"github.com/micromdm/nanoflow/flow/enrol"

	"github.com/micromdm/nanolib/log"
)

// registerFlows registers the CA enrollment flow and its well-known
// enrollment handler with d.
func registerFlows(logger log.Logger, d *dispatch.Dispatcher, s *storageConfig, a caenrol.Authority, p event.Publisher, cacheSize int) error {
	w := caenrol.New(a, s.identity, p, caenrol.WithLogger(logger.With("flow", caenrol.DefaultFlowName)))
	if err := d.RegisterFlow(w); err != nil {
		return fmt.Errorf("registering %s flow: %w", w.Name(), err)
	}

	e := enrol.New(
		enrol.NewCache(cacheSize),
		s.identity,
		d,
		enrol.WithLogger(logger.With("handler", "enrol")),
		enrol.WithFlowName(w.Name()),
	)
	if err := d.RegisterWellKnown(enrol.SessionID, e); err != nil {
		return fmt.Errorf("registering enrollment handler: %w", err)
	}

	return nil
}
