package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, errors.New("oops"), 0)
	if have, want := rec.Code, http.StatusInternalServerError; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := rec.Body.String(), "{\"error\":\"oops\"}\n"; have != want {
		t.Errorf("have: %q, want: %q", have, want)
	}
	if have, want := rec.Header().Get("Content-type"), "application/json"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
