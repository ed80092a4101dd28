package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDumpHandler(t *testing.T) {
	var out bytes.Buffer
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
	})
	h := DumpHandler(next, &out)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/message", strings.NewReader("hello")))
	if have, want := out.String(), "hello\n"; have != want {
		t.Errorf("dump: have: %q, want: %q", have, want)
	}
	if have, want := seen, "hello"; have != want {
		t.Errorf("body: have: %q, want: %q", have, want)
	}
}

func TestLimitBodyHandler(t *testing.T) {
	var readErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})
	h := LimitBodyHandler(next, 4)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/message", strings.NewReader("too long")))
	if readErr == nil {
		t.Error("expected read error")
	}
}
