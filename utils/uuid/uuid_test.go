package uuid

import (
	"regexp"
	"testing"
)

func TestUUIDUnique(t *testing.T) {
	u := NewUUID()
	if u.ID() == u.ID() {
		t.Error("UUIDs are not unique")
	}
}

func TestFlowIDs(t *testing.T) {
	re := regexp.MustCompile(`^[0-9A-F]{8}$`)
	f := NewFlowIDs()
	for i := 0; i < 20; i++ {
		if id := f.ID(); !re.MatchString(id) {
			t.Errorf("invalid flow id: %q", id)
		}
	}
}

func TestStaticIDs(t *testing.T) {
	u := NewStaticIDs("A", "B")
	for _, expected := range []string{"A", "B", "A", "B", "A"} {
		if have, want := u.ID(), expected; have != want {
			t.Errorf("unexpected ID: have: %v, want: %v", have, want)
		}
	}
}
