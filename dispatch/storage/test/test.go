// Package test provides a shared test suite for flow store backends.
package test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/micromdm/nanoflow/dispatch/storage"
)

// TestFlowStorage runs the flow store test suite against a new storage.
func TestFlowStorage(t *testing.T, newStorage func() storage.Storage) {
	s := newStorage()
	ctx := context.Background()

	t.Run("testInstanceCRUD", func(t *testing.T) {
		testInstanceCRUD(t, ctx, s)
	})

	t.Run("testInstanceValidate", func(t *testing.T) {
		testInstanceValidate(t, ctx, s)
	})

	t.Run("testLock", func(t *testing.T) {
		testLock(t, ctx, s)
	})
}

func testInstanceCRUD(t *testing.T, ctx context.Context, s storage.Storage) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	i := &storage.Instance{
		SessionID: "CA:0A1B2C3D",
		Kind:      "CAEnroler",
		ClientID:  "C.1a2b3c4d5e6f7a8b",
		Status:    "RUNNING",
		State:     []byte("<plist/>"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.Load(ctx, i.SessionID); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Fatalf("expected not found; have: %v", err)
	}

	if err := s.Save(ctx, i); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Errorf("expected not found on save; have: %v", err)
	}

	if err := s.CreateInstance(ctx, i); err != nil {
		t.Fatal(err)
	}

	if err := s.CreateInstance(ctx, i); !errors.Is(err, storage.ErrInstanceExists) {
		t.Errorf("expected instance exists; have: %v", err)
	}

	i2, err := s.Load(ctx, i.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := i2.Kind, i.Kind; have != want {
		t.Errorf("kind: have: %v, want: %v", have, want)
	}
	if have, want := i2.ClientID, i.ClientID; have != want {
		t.Errorf("client: have: %v, want: %v", have, want)
	}
	if have, want := i2.State, i.State; !bytes.Equal(have, want) {
		t.Errorf("state: have: %v, want: %v", string(have), string(want))
	}
	if have, want := i2.CreatedAt, now; !have.Equal(want) {
		t.Errorf("created: have: %v, want: %v", have, want)
	}
	if len(i2.Logs) != 0 {
		t.Errorf("expected no logs; have: %v", i2.Logs)
	}

	i2.Status = "FAILED"
	i2.Reason = "identity mismatch"
	i2.NextState = ""
	i2.Logs = []string{"one", "two"}
	i2.UpdatedAt = now.Add(time.Minute)
	if err = s.Save(ctx, i2); err != nil {
		t.Fatal(err)
	}

	i3, err := s.Load(ctx, i.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := i3.Status, "FAILED"; have != want {
		t.Errorf("status: have: %v, want: %v", have, want)
	}
	if have, want := i3.Reason, i2.Reason; have != want {
		t.Errorf("reason: have: %v, want: %v", have, want)
	}
	if have, want := i3.Logs, i2.Logs; !reflect.DeepEqual(have, want) {
		t.Errorf("logs: have: %v, want: %v", have, want)
	}
	if have, want := i3.UpdatedAt, i2.UpdatedAt; !have.Equal(want) {
		t.Errorf("updated: have: %v, want: %v", have, want)
	}

	if err = s.DeleteInstance(ctx, i.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err = s.Load(ctx, i.SessionID); !errors.Is(err, storage.ErrInstanceNotFound) {
		t.Errorf("expected not found after delete; have: %v", err)
	}

	// deleting twice is fine
	if err = s.DeleteInstance(ctx, i.SessionID); err != nil {
		t.Error(err)
	}
}

func testInstanceValidate(t *testing.T, ctx context.Context, s storage.Storage) {
	for _, i := range []*storage.Instance{
		nil,
		{Kind: "k", Status: "RUNNING"},
		{SessionID: "A:1", Status: "RUNNING"},
		{SessionID: "A:1", Kind: "k"},
	} {
		if err := s.CreateInstance(ctx, i); err == nil {
			t.Errorf("expected error for invalid instance: %v", i)
		}
	}
}

func testLock(t *testing.T, ctx context.Context, s storage.Storage) {
	const sid = "W:00000001"

	unlock, err := s.Lock(ctx, sid)
	if err != nil {
		t.Fatal(err)
	}

	// a second lock on the same session must wait
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err = s.Lock(tctx, sid); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded; have: %v", err)
	}

	// other sessions are independent
	unlock2, err := s.Lock(ctx, "W:00000002")
	if err != nil {
		t.Fatal(err)
	}
	unlock2()

	unlock()
	unlock() // releasing twice is a no-op

	// serialized critical sections
	var wg sync.WaitGroup
	var mu sync.Mutex
	inside, maxInside := 0, 0
	for n := 0; n < 10; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := s.Lock(ctx, sid)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			u()
		}()
	}
	wg.Wait()
	if have, want := maxInside, 1; have != want {
		t.Errorf("concurrent holders: have: %v, want: %v", have, want)
	}
}
