package dispatch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/micromdm/nanoflow/dispatch/storage"
	"github.com/micromdm/nanoflow/dispatch/storage/inmem"
	"github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/session"
	"github.com/micromdm/nanoflow/utils/uuid"
)

// countFlow waits for two replies then completes.
type countFlow struct{}

func (countFlow) Name() string { return "Count" }

func (countFlow) Start(_ context.Context, run *flow.Run) error {
	if err := run.State.Register("count", flow.IntegerValue(0)); err != nil {
		return err
	}
	run.Log("started for %s", run.ClientID)
	run.CallState("Reply")
	return nil
}

func (countFlow) Resume(_ context.Context, state string, run *flow.Run, msg *flow.Message) error {
	if state != "Reply" {
		return flow.NewErrUnknownState(state)
	}
	if string(msg.Payload) == "fail" {
		return errors.New("agent reported failure")
	}
	n, err := run.State.GetInteger("count")
	if err != nil {
		return err
	}
	n++
	if err = run.State.Set("count", flow.IntegerValue(n)); err != nil {
		return err
	}
	if n < 2 {
		run.CallState("Reply")
	}
	return nil
}

func newTestDispatcher(t *testing.T, ids ...string) (*Dispatcher, storage.Storage) {
	t.Helper()
	store := inmem.New()
	d := New(store, WithIDer(uuid.NewStaticIDs(ids...)))
	if err := d.RegisterFlow(countFlow{}); err != nil {
		t.Fatal(err)
	}
	return d, store
}

func TestRegister(t *testing.T) {
	d, _ := newTestDispatcher(t, "00000001")

	if err := d.RegisterFlow(countFlow{}); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("expected duplicate registration; have: %v", err)
	}

	sid := session.MustParse("CA:Enrol")
	h := flow.WellKnownFlowFunc(func(context.Context, *flow.Message) error { return nil })
	if err := d.RegisterWellKnown(sid, h); err != nil {
		t.Fatal(err)
	}
	if err := d.RegisterWellKnown(sid, h); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("expected duplicate registration; have: %v", err)
	}
	if err := d.RegisterWellKnown(session.ID{}, h); !errors.Is(err, session.ErrInvalidAddress) {
		t.Errorf("expected invalid address; have: %v", err)
	}
}

func TestRouteWellKnown(t *testing.T) {
	d, _ := newTestDispatcher(t, "00000001")

	var got []*flow.Message
	h := flow.WellKnownFlowFunc(func(_ context.Context, msg *flow.Message) error {
		got = append(got, msg)
		return nil
	})
	if err := d.RegisterWellKnown(session.MustParse("CA:Enrol"), h); err != nil {
		t.Fatal(err)
	}

	msg := &flow.Message{Destination: "CA:Enrol", Source: "C.1", Payload: []byte("x")}
	out := d.Route(context.Background(), msg)
	if out.Err != nil {
		t.Fatal(out.Err)
	}
	if have, want := out.Disposition, Handled; have != want {
		t.Errorf("disposition: have: %v, want: %v", have, want)
	}
	if have, want := out.HandlerKind, flow.HandlerWellKnown; have != want {
		t.Errorf("handler kind: have: %v, want: %v", have, want)
	}
	if len(got) != 1 || got[0] != msg {
		t.Errorf("handler not invoked with message: %v", got)
	}
}

func TestRouteRejected(t *testing.T) {
	d, _ := newTestDispatcher(t, "00000001")
	ctx := context.Background()

	for _, dest := range []string{"", "A", "A:B:C:D", "A%b:123", "W:DEADBEEF"} {
		t.Run(dest, func(t *testing.T) {
			out := d.Route(ctx, &flow.Message{Destination: dest})
			if have, want := out.Disposition, Rejected; have != want {
				t.Errorf("disposition: have: %v, want: %v", have, want)
			}
			if !errors.Is(out.Err, ErrUnroutableMessage) {
				t.Errorf("expected unroutable message; have: %v", out.Err)
			}
		})
	}

	out := d.Route(ctx, &flow.Message{Destination: "A:B:C:D"})
	if !errors.Is(out.Err, session.ErrInvalidAddress) {
		t.Errorf("expected invalid address; have: %v", out.Err)
	}

	if out = d.Route(ctx, nil); !errors.Is(out.Err, ErrUnroutableMessage) {
		t.Errorf("expected unroutable message; have: %v", out.Err)
	}
}

func TestStartAndResume(t *testing.T) {
	d, store := newTestDispatcher(t, "0000000A")
	ctx := context.Background()

	if _, err := d.StartFlow(ctx, "Missing", "W", "C.1", nil); !errors.Is(err, ErrNoSuchFlow) {
		t.Errorf("expected no such flow; have: %v", err)
	}

	out, err := d.StartFlow(ctx, "Count", "W", "C.1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := out.SessionID.String(), "W:0000000A"; have != want {
		t.Errorf("session id: have: %v, want: %v", have, want)
	}
	if have, want := out.Status, flow.StatusRunning; have != want {
		t.Errorf("status: have: %v, want: %v", have, want)
	}

	msg := &flow.Message{Destination: "W:0000000A", Source: "C.1"}
	for step, wantStatus := range []flow.Status{flow.StatusRunning, flow.StatusCompleted} {
		out = d.Route(ctx, msg)
		if out.Err != nil {
			t.Fatalf("step %d: %v", step, out.Err)
		}
		if have, want := out.HandlerKind, flow.HandlerResumable; have != want {
			t.Errorf("handler kind: have: %v, want: %v", have, want)
		}
		if have, want := out.Status, wantStatus; have != want {
			t.Errorf("step %d status: have: %v, want: %v", step, have, want)
		}
	}

	inst, err := store.Load(ctx, "W:0000000A")
	if err != nil {
		t.Fatal(err)
	}
	state := flow.NewState()
	if err = state.UnmarshalBinary(inst.State); err != nil {
		t.Fatal(err)
	}
	n, err := state.GetInteger("count")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := n, int64(2); have != want {
		t.Errorf("count: have: %v, want: %v", have, want)
	}
	if have, want := inst.Logs, []string{"started for C.1"}; !reflect.DeepEqual(have, want) {
		t.Errorf("logs: have: %v, want: %v", have, want)
	}

	// completed flows no longer accept messages
	out = d.Route(ctx, msg)
	if have, want := out.Disposition, Rejected; have != want {
		t.Errorf("disposition: have: %v, want: %v", have, want)
	}
	if !errors.Is(out.Err, ErrUnroutableMessage) {
		t.Errorf("expected unroutable message; have: %v", out.Err)
	}
}

func TestStartIDCollision(t *testing.T) {
	d, _ := newTestDispatcher(t, "0000000C", "0000000C", "0000000D")
	ctx := context.Background()

	for _, want := range []string{"W:0000000C", "W:0000000D"} {
		out, err := d.StartFlow(ctx, "Count", "W", "C.1", nil)
		if err != nil {
			t.Fatal(err)
		}
		if have := out.SessionID.String(); have != want {
			t.Errorf("session id: have: %v, want: %v", have, want)
		}
	}

	// every attempt draws the same taken ID
	d, _ = newTestDispatcher(t, "0000000E")
	if _, err := d.StartFlow(ctx, "Count", "W", "C.1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.StartFlow(ctx, "Count", "W", "C.1", nil); !errors.Is(err, storage.ErrInstanceExists) {
		t.Errorf("expected instance exists; have: %v", err)
	}
}

func TestResumeFailure(t *testing.T) {
	d, store := newTestDispatcher(t, "0000000B")
	ctx := context.Background()

	if _, err := d.StartFlow(ctx, "Count", "W", "C.1", nil); err != nil {
		t.Fatal(err)
	}

	out := d.Route(ctx, &flow.Message{Destination: "W:0000000B", Payload: []byte("fail")})
	if have, want := out.Disposition, Handled; have != want {
		t.Errorf("disposition: have: %v, want: %v", have, want)
	}
	if have, want := out.Status, flow.StatusFailed; have != want {
		t.Errorf("status: have: %v, want: %v", have, want)
	}
	if out.Err == nil {
		t.Error("expected flow error")
	}

	inst, err := store.Load(ctx, "W:0000000B")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := inst.Reason, "agent reported failure"; have != want {
		t.Errorf("reason: have: %v, want: %v", have, want)
	}
}

func TestRouteUnknownKind(t *testing.T) {
	d, store := newTestDispatcher(t, "00000001")
	ctx := context.Background()

	err := store.CreateInstance(ctx, &storage.Instance{
		SessionID: "W:0000000C",
		Kind:      "Unregistered",
		Status:    flow.StatusRunning.String(),
	})
	if err != nil {
		t.Fatal(err)
	}

	out := d.Route(ctx, &flow.Message{Destination: "W:0000000C"})
	if !errors.Is(out.Err, ErrUnroutableMessage) {
		t.Errorf("expected unroutable message; have: %v", out.Err)
	}
	if !errors.Is(out.Err, ErrNoSuchFlow) {
		t.Errorf("expected no such flow; have: %v", out.Err)
	}
}

func TestConcurrentResume(t *testing.T) {
	d, _ := newTestDispatcher(t, "0000000D")
	ctx := context.Background()

	if _, err := d.StartFlow(ctx, "Count", "W", "C.1", nil); err != nil {
		t.Fatal(err)
	}

	// exactly two messages are accepted; the rest find a completed flow
	var wg sync.WaitGroup
	var mu sync.Mutex
	handled := 0
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := d.Route(ctx, &flow.Message{Destination: "W:0000000D"})
			if out.Disposition == Handled && out.Err == nil {
				mu.Lock()
				handled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if have, want := handled, 2; have != want {
		t.Errorf("handled: have: %v, want: %v", have, want)
	}
}
