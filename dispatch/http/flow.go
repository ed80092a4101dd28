package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanoflow/dispatch/storage"
	nfflow "github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/http/api"
	"github.com/micromdm/nanoflow/log/logkeys"
	"github.com/micromdm/nanoflow/session"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrMissingStore = errors.New("missing store")
	ErrNoID         = errors.New("missing id parameter")
)

// Instance is the JSON form of a flow instance for operators.
type Instance struct {
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	ClientID   string    `json:"client_id,omitempty"`
	Status     string    `json:"status"`
	NextState  string    `json:"next_state,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Attributes []string  `json:"attributes"`
	Logs       []string  `json:"logs,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Loader loads flow instances.
type Loader interface {
	Load(ctx context.Context, sessionID string) (*storage.Instance, error)
}

// GetFlowHandler returns JSON describing the flow instance :id.
func GetFlowHandler(store Loader, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Error, ErrMissingStore)
			api.JSONError(w, ErrMissingStore, 0)
			return
		}

		sid, err := session.Parse(flow.Param(r.Context(), "id"))
		if err != nil {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.SessionID, sid.String())
		i, err := store.Load(r.Context(), sid.String())
		if errors.Is(err, storage.ErrInstanceNotFound) {
			api.JSONError(w, err, http.StatusNotFound)
			return
		} else if err != nil {
			logger.Info(logkeys.Message, "load instance", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		state := nfflow.NewState()
		if len(i.State) > 0 {
			if err = state.UnmarshalBinary(i.State); err != nil {
				logger.Info(logkeys.Message, "restoring state", logkeys.Error, err)
				api.JSONError(w, err, 0)
				return
			}
		}

		logger.Debug(logkeys.Message, "retrieved flow instance")
		err = api.JSON(w, &Instance{
			SessionID:  i.SessionID,
			Kind:       i.Kind,
			ClientID:   i.ClientID,
			Status:     i.Status,
			NextState:  i.NextState,
			Reason:     i.Reason,
			Attributes: state.Names(),
			Logs:       i.Logs,
			CreatedAt:  i.CreatedAt,
			UpdatedAt:  i.UpdatedAt,
		}, 0)
		if err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}
