// Package test provides a shared test suite for identity storage backends.
package test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/micromdm/nanoflow/subsystem/identity/storage"
)

func TestIdentityStorage(t *testing.T, newStorage func() (storage.Storage, error)) {
	s, err := newStorage()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id := "C.1a2b3c4d5e6f7a8b"
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// clean slate for persistent backends
	if err = s.DeleteRecord(ctx, id); err != nil {
		t.Fatal(err)
	}

	cert, err := s.RetrieveCertificate(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if cert != nil {
		t.Errorf("expected nil certificate; have: %v", cert)
	}

	if _, err = s.RetrieveRecord(ctx, id); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("expected client not found; have: %v", err)
	}

	if err = s.StoreCertificate(ctx, id, nil, first); !errors.Is(err, storage.ErrNoCertificate) {
		t.Errorf("expected no certificate; have: %v", err)
	}
	if err = s.StoreCertificate(ctx, "", []byte{1}, first); !errors.Is(err, storage.ErrNoID) {
		t.Errorf("expected no id; have: %v", err)
	}

	if err = s.StoreCertificate(ctx, id, []byte{1, 2, 3}, first); err != nil {
		t.Fatal(err)
	}

	cert, err = s.RetrieveCertificate(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := cert, []byte{1, 2, 3}; !bytes.Equal(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}

	// a later store replaces the certificate and keeps first seen
	if err = s.StoreCertificate(ctx, id, []byte{4, 5}, first.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	r, err := s.RetrieveRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := r.ID, id; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := r.Certificate, []byte{4, 5}; !bytes.Equal(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := r.FirstSeen, first; !have.Equal(want) {
		t.Errorf("first seen: have: %v, want: %v", have, want)
	}

	if err = s.DeleteRecord(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err = s.RetrieveRecord(ctx, id); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("expected client not found; have: %v", err)
	}

	// concurrent first stores settle on a single first seen
	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.StoreCertificate(ctx, id, []byte{byte(n + 1)}, first.Add(time.Duration(n)*time.Hour)); err != nil {
				t.Error(err)
			}
		}(n)
	}
	wg.Wait()
	r, err = s.RetrieveRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Certificate) != 1 {
		t.Errorf("expected a certificate; have: %v", r.Certificate)
	}
	settled := r.FirstSeen
	if settled.Before(first) || settled.After(first.Add(7*time.Hour)) {
		t.Errorf("unexpected first seen: %v", settled)
	}
	if err = s.StoreCertificate(ctx, id, []byte{9}, first.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if r, err = s.RetrieveRecord(ctx, id); err != nil {
		t.Fatal(err)
	}
	if have, want := r.FirstSeen, settled; !have.Equal(want) {
		t.Errorf("first seen: have: %v, want: %v", have, want)
	}

	if err = s.DeleteRecord(ctx, id); err != nil {
		t.Fatal(err)
	}
}
