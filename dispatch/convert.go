package dispatch

import (
	"fmt"
	"time"

	"github.com/micromdm/nanoflow/dispatch/storage"
	"github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/session"
)

// runFromInstance restores a flow run from a stored instance.
func runFromInstance(i *storage.Instance) (*flow.Run, error) {
	sid, err := session.Parse(i.SessionID)
	if err != nil {
		return nil, err
	}
	state := flow.NewState()
	if len(i.State) > 0 {
		if err = state.UnmarshalBinary(i.State); err != nil {
			return nil, fmt.Errorf("restoring state: %w", err)
		}
	}
	return flow.NewRun(sid, i.ClientID, state), nil
}

// applyRun updates i with the results of run.
// runErr is the error, if any, returned by the flow.
func applyRun(i *storage.Instance, run *flow.Run, runErr error, now time.Time) error {
	stateBytes, err := run.State.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	i.State = stateBytes
	i.Logs = append(i.Logs, run.Logs()...)
	i.UpdatedAt = now
	switch {
	case runErr != nil:
		i.Status = flow.StatusFailed.String()
		i.Reason = runErr.Error()
		i.NextState = ""
	case run.NextState() != "":
		i.Status = flow.StatusRunning.String()
		i.NextState = run.NextState()
	default:
		i.Status = flow.StatusCompleted.String()
		i.NextState = ""
	}
	return nil
}
