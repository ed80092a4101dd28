package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/micromdm/nanoflow/event"
	"github.com/micromdm/nanoflow/utils/uuid"
)

func TestBus(t *testing.T) {
	b := New(WithIDer(uuid.NewStaticIDs("ev-1")))
	var _ event.Publisher = b

	var got []*Event
	b.Subscribe(event.TopicClientEnrollment, func(_ context.Context, e *Event) error {
		got = append(got, e)
		return errors.New("handler errors are not returned")
	})
	b.Subscribe(event.TopicClientEnrollment, func(_ context.Context, e *Event) error {
		got = append(got, e)
		return nil
	})

	ctx := context.Background()
	if err := b.Publish(ctx, "Other", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(ctx, event.TopicClientEnrollment, []byte("C.1")); err != nil {
		t.Fatal(err)
	}

	if have, want := len(got), 2; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := got[1].ID, "ev-1"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := string(got[1].Payload), "C.1"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	if err := b.Publish(ctx, "", nil); err == nil {
		t.Error("expected error for empty topic")
	}
}
