// Package storage defines types and interfaces to support the identity subsystem.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrNoID           = errors.New("no client identity")
	ErrNoCertificate  = errors.New("no certificate")
)

// Record is what is known about an enrolled client identity.
type Record struct {
	ID          string    `json:"id"`
	Certificate []byte    `json:"certificate,omitempty"` // DER
	FirstSeen   time.Time `json:"first_seen"`
}

type ReadStorage interface {
	// RetrieveCertificate returns the DER certificate issued to id.
	// A nil certificate and nil error are returned if none is stored.
	RetrieveCertificate(ctx context.Context, id string) ([]byte, error)

	// RetrieveRecord returns the record for id.
	// ErrClientNotFound is returned if no record exists.
	RetrieveRecord(ctx context.Context, id string) (*Record, error)
}

type Storage interface {
	ReadStorage

	// StoreCertificate records the certificate and first-seen time for id.
	// The store is durable when StoreCertificate returns.
	// An existing first-seen time is kept.
	StoreCertificate(ctx context.Context, id string, cert []byte, firstSeen time.Time) error

	DeleteRecord(ctx context.Context, id string) error
}
