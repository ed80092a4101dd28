// Package http contains HTTP handlers for the dispatcher.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micromdm/nanoflow/dispatch"
	"github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/http/api"
	"github.com/micromdm/nanoflow/log/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Message is the agent wire form of a flow message.
type Message struct {
	Destination string `json:"destination"`
	Source      string `json:"source"`
	PayloadType string `json:"payload_type,omitempty"`
	Payload     []byte `json:"payload,omitempty"` // base64 in JSON
}

// Outcome is the JSON form of a dispatch outcome.
type Outcome struct {
	Disposition string `json:"disposition"`
	HandlerKind string `json:"handler_kind"`
	SessionID   string `json:"session_id,omitempty"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
}

func outcomeJSON(o *dispatch.Outcome) *Outcome {
	out := &Outcome{
		Disposition: o.Disposition.String(),
		HandlerKind: o.HandlerKind.String(),
		SessionID:   o.SessionID.String(),
		Status:      o.Status.String(),
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}

// Router routes messages.
type Router interface {
	Route(ctx context.Context, msg *flow.Message) *dispatch.Outcome
}

// statusForOutcome maps an outcome to an HTTP status code.
// Flow failures are reported in the body of a successful response.
func statusForOutcome(o *dispatch.Outcome) int {
	switch {
	case o.Disposition == dispatch.Handled:
		return http.StatusOK
	case errors.Is(o.Err, dispatch.ErrUnroutableMessage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// MessageHandler decodes agent messages and routes them.
func MessageHandler(router Router, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)

		m := new(Message)
		if err := json.NewDecoder(r.Body).Decode(m); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		o := router.Route(r.Context(), &flow.Message{
			Destination: m.Destination,
			Source:      m.Source,
			PayloadType: m.PayloadType,
			Payload:     m.Payload,
		})

		logger.Debug(
			logkeys.Message, "routed message",
			logkeys.SessionID, m.Destination,
			logkeys.ClientID, m.Source,
			logkeys.HandlerKind, o.HandlerKind.String(),
		)
		if err := api.JSON(w, outcomeJSON(o), statusForOutcome(o)); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}
