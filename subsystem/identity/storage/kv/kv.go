// Package kv implements an identity subsystem storage backend using a key-value store.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/micromdm/nanoflow/subsystem/identity/storage"

	"github.com/micromdm/nanolib/storage/kv"
	"github.com/micromdm/nanolib/storage/kv/kvtxn"
)

const (
	keySfxCert      = ".cert"
	keySfxFirstSeen = ".firstseen"
)

// KV is an identity subsystem storage backend using a key-value store.
type KV struct {
	b kv.TxnBucket
}

// New creates a new identity subsystem backend.
// Writes to b are transacted.
func New(b kv.Bucket) *KV {
	if b == nil {
		panic("nil bucket")
	}
	return &KV{b: kvtxn.New(b)}
}

// RetrieveCertificate implements the storage interface method.
func (s *KV) RetrieveCertificate(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, storage.ErrNoID
	}
	cert, err := s.b.Get(ctx, id+keySfxCert)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, nil
	}
	return cert, err
}

// RetrieveRecord implements the storage interface method.
func (s *KV) RetrieveRecord(ctx context.Context, id string) (*storage.Record, error) {
	if id == "" {
		return nil, storage.ErrNoID
	}
	firstSeen, err := s.b.Get(ctx, id+keySfxFirstSeen)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, id)
	} else if err != nil {
		return nil, err
	}
	r := &storage.Record{ID: id}
	if r.Certificate, err = s.b.Get(ctx, id+keySfxCert); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		return nil, err
	}
	if err = r.FirstSeen.UnmarshalText(firstSeen); err != nil {
		return nil, fmt.Errorf("unmarshal first seen: %w", err)
	}
	return r, nil
}

// StoreCertificate implements the storage interface method.
// First seen is only set for new clients.
func (s *KV) StoreCertificate(ctx context.Context, id string, cert []byte, firstSeen time.Time) error {
	if id == "" {
		return storage.ErrNoID
	}
	if len(cert) < 1 {
		return storage.ErrNoCertificate
	}
	firstSeenBytes, err := firstSeen.UTC().MarshalText()
	if err != nil {
		return fmt.Errorf("marshal first seen: %w", err)
	}
	return kv.PerformBucketTxn(ctx, s.b, func(ctx context.Context, b kv.Bucket) error {
		// staging the certificate holds its key lock until commit which
		// serializes concurrent stores for id across the first seen check.
		if err := b.Set(ctx, id+keySfxCert, cert); err != nil {
			return fmt.Errorf("setting certificate: %w", err)
		}
		ok, err := b.Has(ctx, id+keySfxFirstSeen)
		if err != nil {
			return fmt.Errorf("checking first seen: %w", err)
		}
		if ok {
			return nil
		}
		if err = b.Set(ctx, id+keySfxFirstSeen, firstSeenBytes); err != nil {
			return fmt.Errorf("setting first seen: %w", err)
		}
		return nil
	})
}

// DeleteRecord implements the storage interface method.
func (s *KV) DeleteRecord(ctx context.Context, id string) error {
	if id == "" {
		return storage.ErrNoID
	}
	return kv.PerformBucketTxn(ctx, s.b, func(ctx context.Context, b kv.Bucket) error {
		return kv.DeleteSlice(ctx, b, []string{id + keySfxCert, id + keySfxFirstSeen})
	})
}
