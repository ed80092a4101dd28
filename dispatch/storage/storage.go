// Package storage defines types and primitives for flow store backends.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInstanceNotFound is returned when a flow instance does not exist.
	ErrInstanceNotFound = errors.New("flow instance not found")

	// ErrInstanceExists is returned when creating an already existing flow instance.
	ErrInstanceExists = errors.New("flow instance exists")

	ErrEmptyInstance     = errors.New("empty instance")
	ErrMissingSessionID  = errors.New("missing session id")
	ErrMissingKind       = errors.New("missing flow kind")
	ErrMissingStatusName = errors.New("missing status")
)

// Instance is the stored form of a flow instance.
type Instance struct {
	SessionID string // canonical SessionID string. the instance key.
	Kind      string // flow kind name. used to route messages back to the flow.
	ClientID  string // client identity this instance was started for.
	Status    string // RUNNING, COMPLETED, or FAILED.

	NextState string // state name handling the next message.
	Reason    string // failure reason, if any.

	State []byte   // flow state attributes (in raw marshaled binary form).
	Logs  []string // human-readable flow log lines.

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks for missing values.
func (i *Instance) Validate() error {
	if i == nil {
		return ErrEmptyInstance
	}
	if i.SessionID == "" {
		return ErrMissingSessionID
	}
	if i.Kind == "" {
		return ErrMissingKind
	}
	if i.Status == "" {
		return ErrMissingStatusName
	}
	return nil
}

// UnlockFunc releases a session lock.
type UnlockFunc func()

// Storage is the flow store.
type Storage interface {
	// CreateInstance stores a new flow instance.
	// ErrInstanceExists is returned if the SessionID is taken.
	CreateInstance(ctx context.Context, i *Instance) error

	// Load retrieves the flow instance for sessionID.
	// ErrInstanceNotFound is returned if it does not exist.
	Load(ctx context.Context, sessionID string) (*Instance, error)

	// Save updates an existing flow instance.
	Save(ctx context.Context, i *Instance) error

	// DeleteInstance removes a flow instance.
	DeleteInstance(ctx context.Context, sessionID string) error

	// Lock acquires the single-writer lock for sessionID.
	// The caller must call the returned function to release it.
	Lock(ctx context.Context, sessionID string) (UnlockFunc, error)
}
