package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"A",
		"A:",
		":B",
		"A:B:C:D",
		"A%b:123",
		"A:123:",
		"A::123",
		"A:12 34",
		"A:1.2",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("expected invalid address error; have: %v", err)
			}
		})
	}
}

func TestParseComponents(t *testing.T) {
	for _, tc := range []struct {
		raw      string
		queue    string
		flowName string
		flowID   string
		suffix   string
	}{
		{"A:12345678", "A", "12345678", "12345678", ""},
		{"DEBUG-user1:12345678:hunt", "DEBUG-user1", "12345678:hunt", "12345678", "hunt"},
		{"CA:Enrol", "CA", "Enrol", "Enrol", ""},
		{"W:0A1b_c", "W", "0A1b_c", "0A1b_c", ""},
	} {
		t.Run(tc.raw, func(t *testing.T) {
			id, err := Parse(tc.raw)
			if err != nil {
				t.Fatal(err)
			}
			if have, want := id.Queue(), tc.queue; have != want {
				t.Errorf("queue: have: %v, want: %v", have, want)
			}
			if have, want := id.FlowName(), tc.flowName; have != want {
				t.Errorf("flow name: have: %v, want: %v", have, want)
			}
			if have, want := id.FlowID(), tc.flowID; have != want {
				t.Errorf("flow id: have: %v, want: %v", have, want)
			}
			if have, want := id.Suffix(), tc.suffix; have != want {
				t.Errorf("suffix: have: %v, want: %v", have, want)
			}
			if have, want := id.String(), tc.raw; have != want {
				t.Errorf("string: have: %v, want: %v", have, want)
			}

			// round trip
			id2, err := Parse(id.String())
			if err != nil {
				t.Fatal(err)
			}
			if id != id2 {
				t.Errorf("round trip: have: %v, want: %v", id2, id)
			}
		})
	}
}

func TestNewWithSuffix(t *testing.T) {
	id, err := New("W", "ABCDEF01")
	if err != nil {
		t.Fatal(err)
	}
	id, err = id.WithSuffix("hunt")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := id.String(), "W:ABCDEF01:hunt"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	if _, err = id.WithSuffix("a:b"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected invalid address error; have: %v", err)
	}
	if _, err = New("", "ABC"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected invalid address error; have: %v", err)
	}
	if _, err = new(ID).WithSuffix("hunt"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected invalid address error; have: %v", err)
	}
}

func TestMapKey(t *testing.T) {
	m := map[ID]int{MustParse("A:1"): 1}
	if have, want := m[MustParse("A:1")], 1; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestJSON(t *testing.T) {
	type msg struct {
		Destination ID `json:"destination"`
	}
	in := msg{Destination: MustParse("DEBUG-user1:12345678:hunt")}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := string(b), `{"destination":"DEBUG-user1:12345678:hunt"}`; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	var out msg
	if err = json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("have: %v, want: %v", out, in)
	}

	if err = json.Unmarshal([]byte(`{"destination":"A"}`), &out); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected invalid address error; have: %v", err)
	}
}
