package flow

import (
	"errors"
	"reflect"
	"testing"

	"github.com/micromdm/nanoflow/session"
)

func sessionIDForTest(t *testing.T) session.ID {
	t.Helper()
	id, err := session.Parse("W:0000000A")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestStateRegisterGet(t *testing.T) {
	s := NewState()
	if err := s.Register("number", IntegerValue(0)); err != nil {
		t.Fatal(err)
	}

	n, err := s.GetInteger("number")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := n, int64(0); have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	if _, err = s.Get("missing"); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("expected unknown attribute; have: %v", err)
	}

	if err = s.Register("number", IntegerValue(1)); !errors.Is(err, ErrDuplicateAttribute) {
		t.Errorf("expected duplicate attribute; have: %v", err)
	}

	if err = s.Set("missing", IntegerValue(1)); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("expected unknown attribute; have: %v", err)
	}

	if err = s.Register("", IntegerValue(1)); !errors.Is(err, ErrInvalidAttributeName) {
		t.Errorf("expected invalid attribute name; have: %v", err)
	}

	if err = s.Set("number", IntegerValue(42)); err != nil {
		t.Fatal(err)
	}
	if n, _ = s.GetInteger("number"); n != 42 {
		t.Errorf("have: %v, want: %v", n, 42)
	}

	if _, err = s.GetString("number"); !errors.Is(err, ErrWrongKind) {
		t.Errorf("expected wrong kind; have: %v", err)
	}

	if have, want := s.Len(), 1; have != want {
		t.Errorf("len: have: %v, want: %v", have, want)
	}
}

func TestStateInvalidValue(t *testing.T) {
	s := NewState()
	if err := s.Register("a", Value{}); !errors.Is(err, ErrWrongKind) {
		t.Errorf("expected wrong kind; have: %v", err)
	}
	if s.Has("a") {
		t.Error("attribute registered")
	}
}

func TestStateRoundTrip(t *testing.T) {
	csr := NewState()
	if err := csr.Register("type", StringValue("CSR")); err != nil {
		t.Fatal(err)
	}
	if err := csr.Register("pem", BytesValue([]byte("-----BEGIN CERTIFICATE REQUEST-----"))); err != nil {
		t.Fatal(err)
	}

	s := NewState()
	for _, attr := range []struct {
		name string
		v    Value
	}{
		{"csr", RecordValue(csr)},
		{"number", IntegerValue(-17)},
		{"cn", StringValue("C.1a2b3c4d5e6f7a8b")},
		{"cert", BytesValue([]byte{0x30, 0x82, 0x00, 0xff})},
		{"empty", StringValue("")},
		{"nested", RecordValue(nil)},
		{"nul", StringValue("x\x00y")},
		{"invalid-utf8", StringValue("\xff\xfe")},
		{"bell", StringValue("bell\a")},
		{"crlf", StringValue("a\r\nb")},
		{"text", StringValue("tab\tnewline\n\u2713")},
	} {
		if err := s.Register(attr.name, attr.v); err != nil {
			t.Fatal(err)
		}
	}

	b, err := s.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	s2 := NewState()
	if err = s2.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}

	if have, want := s2.Names(), s.Names(); !reflect.DeepEqual(have, want) {
		t.Errorf("names: have: %v, want: %v", have, want)
	}
	if !s.Equal(s2) {
		t.Error("restored state not equal")
	}

	rec, err := s2.GetRecord("csr")
	if err != nil {
		t.Fatal(err)
	}
	typ, err := rec.GetString("type")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := typ, "CSR"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	n, err := s2.GetInteger("number")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := n, int64(-17); have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	for name, want := range map[string]string{
		"nul":          "x\x00y",
		"invalid-utf8": "\xff\xfe",
		"bell":         "bell\a",
		"crlf":         "a\r\nb",
		"text":         "tab\tnewline\n\u2713",
	} {
		have, err := s2.GetString(name)
		if err != nil {
			t.Fatal(err)
		}
		if have != want {
			t.Errorf("%s: have: %q, want: %q", name, have, want)
		}
	}
}

func TestStateInvalidName(t *testing.T) {
	s := NewState()
	for _, name := range []string{"", "x\x00y", "\xff", "a\rb"} {
		if err := s.Register(name, IntegerValue(1)); !errors.Is(err, ErrInvalidAttributeName) {
			t.Errorf("%q: expected invalid attribute name; have: %v", name, err)
		}
	}
	if have, want := s.Len(), 0; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestStateNil(t *testing.T) {
	var s *State
	if _, err := s.Get("x"); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("expected unknown attribute; have: %v", err)
	}
	if _, err := s.GetString("x"); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("expected unknown attribute; have: %v", err)
	}
	if err := s.Set("x", IntegerValue(1)); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("expected unknown attribute; have: %v", err)
	}
	if err := s.Register("x", IntegerValue(1)); err == nil {
		t.Error("expected error")
	}
	if s.Has("x") || s.Len() != 0 || s.Names() != nil {
		t.Error("expected empty nil state")
	}
}

func TestStateEmptyRoundTrip(t *testing.T) {
	b, err := NewState().MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	s := NewState()
	if err = s.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if have, want := s.Len(), 0; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestRunLog(t *testing.T) {
	r := NewRun(sessionIDForTest(t), "C.1", nil)
	r.Log("Enrolled %s successfully", "C.1")
	if have, want := r.Logs(), []string{"Enrolled C.1 successfully"}; !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if r.NextState() != "" {
		t.Error("expected no next state")
	}
	r.CallState("Reply")
	if have, want := r.NextState(), "Reply"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestStatusForString(t *testing.T) {
	for _, s := range []Status{StatusRunning, StatusCompleted, StatusFailed} {
		if have, want := StatusForString(s.String()), s; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
	}
	if StatusRunning.Terminal() || !StatusFailed.Terminal() {
		t.Error("terminal mismatch")
	}
}
