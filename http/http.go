// Package http includes handlers and utilties.
package http

import (
	"bytes"
	"io"
	"net/http"
)

// ReadAllAndReplaceBody reads all of r.Body and replaces it with a new byte buffer.
func ReadAllAndReplaceBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return b, err
	}
	defer r.Body.Close()
	r.Body = io.NopCloser(bytes.NewBuffer(b))
	return b, nil
}

// DumpHandler outputs the body of the request to output.
// Empty bodies are not written.
func DumpHandler(next http.Handler, output io.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if body, _ := ReadAllAndReplaceBody(r); len(body) > 0 {
			output.Write(append(body, '\n'))
		}
		next.ServeHTTP(w, r)
	}
}

// LimitBodyHandler caps the request body of next at max bytes.
func LimitBodyHandler(next http.Handler, max int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, max)
		next.ServeHTTP(w, r)
	}
}
