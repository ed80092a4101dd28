// Package inmem implements a flow store backend using a map-based key-value store.
package inmem

import (
	"github.com/micromdm/nanoflow/dispatch/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
)

// InMem is an in-memory flow store backend.
type InMem struct {
	*kv.KV
}

// New creates a new in-memory flow store.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.New())}
}
