// Package http contains HTTP handlers for working with the identity subsystem.
package http

import (
	"errors"
	"net/http"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanoflow/ca"
	"github.com/micromdm/nanoflow/http/api"
	"github.com/micromdm/nanoflow/log/logkeys"
	"github.com/micromdm/nanoflow/subsystem/identity/storage"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoStorage = errors.New("no storage backend")
	ErrNoID      = errors.New("missing id parameter")
)

func statusForError(err error) int {
	if errors.Is(err, storage.ErrClientNotFound) {
		return http.StatusNotFound
	}
	return 0
}

// RetrieveRecordHandler returns the JSON identity record of the client id.
func RetrieveRecordHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "retrieve record", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.ClientID, id)
		rec, err := store.RetrieveRecord(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve record", logkeys.Error, err)
			api.JSONError(w, err, statusForError(err))
			return
		}
		logger.Debug(logkeys.Message, "retrieved record")
		if err = api.JSON(w, rec, 0); err != nil {
			logger.Info(logkeys.Message, "encode response", logkeys.Error, err)
		}
	}
}

// RetrieveCertificateHandler returns the certificate of the client id as a certs-only PKCS#7.
func RetrieveCertificateHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Message, "retrieve certificate", logkeys.Error, ErrNoStorage)
			api.JSONError(w, ErrNoStorage, 0)
			return
		}

		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.ClientID, id)
		cert, err := store.RetrieveCertificate(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve certificate", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		if cert == nil {
			api.JSONError(w, storage.ErrNoCertificate, http.StatusNotFound)
			return
		}

		p7, err := ca.CertsOnly(cert)
		if err != nil {
			logger.Info(logkeys.Message, "wrapping certificate", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(logkeys.Message, "retrieved certificate")
		w.Header().Set("Content-Type", "application/pkcs7-mime")
		w.Write(p7)
	}
}
