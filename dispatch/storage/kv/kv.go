// Package kv implements a flow store backend using a key-value interface.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/micromdm/nanoflow/dispatch/storage"

	"github.com/groob/plist"
	"github.com/micromdm/nanolib/storage/kv"
)

const (
	keySfxKind    = ".kind"
	keySfxClient  = ".client"
	keySfxStatus  = ".status"
	keySfxNext    = ".next"
	keySfxReason  = ".reason"
	keySfxState   = ".state"
	keySfxLogs    = ".logs"    // plist array of log lines
	keySfxCreated = ".created" // RFC 3339 text
	keySfxUpdated = ".updated" // RFC 3339 text
)

var keySfxInstanceKeys = []string{
	keySfxKind, // should always exist
	keySfxClient,
	keySfxStatus, // should always exist
	keySfxNext,
	keySfxReason,
	keySfxState,
	keySfxLogs,
	keySfxCreated,
	keySfxUpdated,
}

// KV is a flow store backend using a key-value interface.
type KV struct {
	b     kv.Bucket
	locks *keyedLocker
}

// New creates a new key-value flow store backend.
func New(b kv.Bucket) *KV {
	if b == nil {
		panic("nil bucket")
	}
	return &KV{b: b, locks: newKeyedLocker()}
}

func marshalTime(t time.Time) ([]byte, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().MarshalText()
}

func instanceMap(i *storage.Instance) (map[string][]byte, error) {
	created, err := marshalTime(i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("marshal created time: %w", err)
	}
	updated, err := marshalTime(i.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("marshal updated time: %w", err)
	}
	logs := i.Logs
	if logs == nil {
		logs = []string{}
	}
	logsBytes, err := plist.Marshal(logs)
	if err != nil {
		return nil, fmt.Errorf("marshal logs: %w", err)
	}
	return map[string][]byte{
		i.SessionID + keySfxKind:    []byte(i.Kind),
		i.SessionID + keySfxClient:  []byte(i.ClientID),
		i.SessionID + keySfxStatus:  []byte(i.Status),
		i.SessionID + keySfxNext:    []byte(i.NextState),
		i.SessionID + keySfxReason:  []byte(i.Reason),
		i.SessionID + keySfxState:   i.State,
		i.SessionID + keySfxLogs:    logsBytes,
		i.SessionID + keySfxCreated: created,
		i.SessionID + keySfxUpdated: updated,
	}, nil
}

func (s *KV) exists(ctx context.Context, sessionID string) (bool, error) {
	return s.b.Has(ctx, sessionID+keySfxKind)
}

// CreateInstance implements the storage interface method.
func (s *KV) CreateInstance(ctx context.Context, i *storage.Instance) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("validating instance: %w", err)
	}
	if ok, err := s.exists(ctx, i.SessionID); err != nil {
		return fmt.Errorf("checking instance exists: %w", err)
	} else if ok {
		return fmt.Errorf("%w: %s", storage.ErrInstanceExists, i.SessionID)
	}
	m, err := instanceMap(i)
	if err != nil {
		return err
	}
	return kv.SetMap(ctx, s.b, m)
}

// Save implements the storage interface method.
func (s *KV) Save(ctx context.Context, i *storage.Instance) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("validating instance: %w", err)
	}
	if ok, err := s.exists(ctx, i.SessionID); err != nil {
		return fmt.Errorf("checking instance exists: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, i.SessionID)
	}
	m, err := instanceMap(i)
	if err != nil {
		return err
	}
	return kv.SetMap(ctx, s.b, m)
}

// Load implements the storage interface method.
func (s *KV) Load(ctx context.Context, sessionID string) (*storage.Instance, error) {
	if ok, err := s.exists(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("checking instance exists: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, sessionID)
	}
	keys := make([]string, len(keySfxInstanceKeys))
	for n, sfx := range keySfxInstanceKeys {
		keys[n] = sessionID + sfx
	}
	// every key is written with the instance
	m, err := kv.GetMap(ctx, s.b, keys)
	if err != nil {
		return nil, err
	}
	i := &storage.Instance{
		SessionID: sessionID,
		Kind:      string(m[sessionID+keySfxKind]),
		ClientID:  string(m[sessionID+keySfxClient]),
		Status:    string(m[sessionID+keySfxStatus]),
		NextState: string(m[sessionID+keySfxNext]),
		Reason:    string(m[sessionID+keySfxReason]),
		State:     m[sessionID+keySfxState],
	}
	if b := m[sessionID+keySfxLogs]; len(b) > 0 {
		if err = plist.Unmarshal(b, &i.Logs); err != nil {
			return nil, fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	if b := m[sessionID+keySfxCreated]; len(b) > 0 {
		if err = i.CreatedAt.UnmarshalText(b); err != nil {
			return nil, fmt.Errorf("unmarshal created time: %w", err)
		}
	}
	if b := m[sessionID+keySfxUpdated]; len(b) > 0 {
		if err = i.UpdatedAt.UnmarshalText(b); err != nil {
			return nil, fmt.Errorf("unmarshal updated time: %w", err)
		}
	}
	return i, nil
}

// DeleteInstance implements the storage interface method.
func (s *KV) DeleteInstance(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return storage.ErrMissingSessionID
	}
	keys := make([]string, len(keySfxInstanceKeys))
	for n, sfx := range keySfxInstanceKeys {
		keys[n] = sessionID + sfx
	}
	return kv.DeleteSlice(ctx, s.b, keys)
}

// Lock implements the storage interface method.
func (s *KV) Lock(ctx context.Context, sessionID string) (storage.UnlockFunc, error) {
	if sessionID == "" {
		return nil, storage.ErrMissingSessionID
	}
	return s.locks.lock(ctx, sessionID)
}
