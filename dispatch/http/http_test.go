package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanoflow/dispatch"
	"github.com/micromdm/nanoflow/dispatch/storage/inmem"
	nfflow "github.com/micromdm/nanoflow/flow"
	"github.com/micromdm/nanoflow/session"
	"github.com/micromdm/nanoflow/utils/uuid"
	"github.com/micromdm/nanolib/log"
)

// echoFlow records the payload of its single reply.
type echoFlow struct{}

func (echoFlow) Name() string { return "Echo" }

func (echoFlow) Start(_ context.Context, run *nfflow.Run) error {
	run.CallState("Reply")
	return nil
}

func (echoFlow) Resume(_ context.Context, state string, run *nfflow.Run, msg *nfflow.Message) error {
	run.Log("%s", msg.Payload)
	return run.State.Register("reply", nfflow.BytesValue(msg.Payload))
}

func post(t *testing.T, h http.Handler, m *Message) (*httptest.ResponseRecorder, *Outcome) {
	t.Helper()
	body, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/message", bytes.NewReader(body)))
	out := new(Outcome)
	if err = json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
	return rec, out
}

func TestMessageRoundTrip(t *testing.T) {
	store := inmem.New()
	d := dispatch.New(store, dispatch.WithIDer(uuid.NewStaticIDs("00000E40")))
	if err := d.RegisterFlow(echoFlow{}); err != nil {
		t.Fatal(err)
	}
	var wellKnown []*nfflow.Message
	err := d.RegisterWellKnown(session.MustParse("W:Ping"), nfflow.WellKnownFlowFunc(func(_ context.Context, msg *nfflow.Message) error {
		wellKnown = append(wellKnown, msg)
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = d.StartFlow(context.Background(), "Echo", "W", "C.1", nil); err != nil {
		t.Fatal(err)
	}

	h := MessageHandler(d, log.NopLogger)

	rec, out := post(t, h, &Message{Destination: "W:00000E40", Source: "C.1", Payload: []byte("hello")})
	if have, want := rec.Code, http.StatusOK; have != want {
		t.Errorf("code: have: %v, want: %v", have, want)
	}
	if have, want := out.Status, "COMPLETED"; have != want {
		t.Errorf("status: have: %v, want: %v", have, want)
	}
	if have, want := out.HandlerKind, "resumable"; have != want {
		t.Errorf("handler kind: have: %v, want: %v", have, want)
	}

	rec, out = post(t, h, &Message{Destination: "W:Ping", Source: "C.1", Payload: []byte{0, 1}})
	if have, want := rec.Code, http.StatusOK; have != want {
		t.Errorf("code: have: %v, want: %v", have, want)
	}
	if have, want := out.HandlerKind, "well-known"; have != want {
		t.Errorf("handler kind: have: %v, want: %v", have, want)
	}
	if len(wellKnown) != 1 || !bytes.Equal(wellKnown[0].Payload, []byte{0, 1}) {
		t.Errorf("well-known handler payload: %v", wellKnown)
	}

	// the completed flow rejects further messages
	rec, out = post(t, h, &Message{Destination: "W:00000E40", Source: "C.1"})
	if have, want := rec.Code, http.StatusBadRequest; have != want {
		t.Errorf("code: have: %v, want: %v", have, want)
	}
	if have, want := out.Disposition, "rejected"; have != want {
		t.Errorf("disposition: have: %v, want: %v", have, want)
	}

	rec, _ = post(t, h, &Message{Destination: "bad"})
	if have, want := rec.Code, http.StatusBadRequest; have != want {
		t.Errorf("code: have: %v, want: %v", have, want)
	}

	// inspect the flow
	mux := flow.New()
	HandleAPIv1("/v1", mux, log.NopLogger, store)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/flow/W:00000E40", nil))
	if have, want := rec.Code, http.StatusOK; have != want {
		t.Fatalf("code: have: %v, want: %v", have, want)
	}
	inst := new(Instance)
	if err = json.NewDecoder(rec.Body).Decode(inst); err != nil {
		t.Fatal(err)
	}
	if have, want := inst.Attributes, []string{"reply"}; !reflect.DeepEqual(have, want) {
		t.Errorf("attributes: have: %v, want: %v", have, want)
	}
	if have, want := inst.Logs, []string{"hello"}; !reflect.DeepEqual(have, want) {
		t.Errorf("logs: have: %v, want: %v", have, want)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/flow/W:00000000", nil))
	if have, want := rec.Code, http.StatusNotFound; have != want {
		t.Errorf("code: have: %v, want: %v", have, want)
	}
}

func TestMessageBadBody(t *testing.T) {
	d := dispatch.New(inmem.New())
	rec := httptest.NewRecorder()
	MessageHandler(d, log.NopLogger).ServeHTTP(rec, httptest.NewRequest("POST", "/message", bytes.NewReader([]byte("{"))))
	if have, want := rec.Code, http.StatusBadRequest; have != want {
		t.Errorf("code: have: %v, want: %v", have, want)
	}
}
