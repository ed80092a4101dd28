// Package api contains shared JSON helpers for API and agent handlers.
package api

import (
	"encoding/json"
	"net/http"
)

// JSONError encodes err as JSON to w.
// A statusCode less than 1 means internal server error.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	jsonErr := &struct {
		Err string `json:"error"`
	}{Err: err.Error()}
	if statusCode < 1 {
		statusCode = http.StatusInternalServerError
	}
	JSON(w, jsonErr, statusCode)
}

// JSON encodes v as JSON to w with statusCode.
// A statusCode less than 1 means OK.
func JSON(w http.ResponseWriter, v interface{}, statusCode int) error {
	w.Header().Set("Content-type", "application/json")
	if statusCode < 1 {
		statusCode = http.StatusOK
	}
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}
