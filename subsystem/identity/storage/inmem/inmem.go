// Package inmem implements an in-memory identity subsystem storage backend.
package inmem

import (
	"github.com/micromdm/nanoflow/subsystem/identity/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
)

// InMem is an in-memory identity storage backend.
type InMem struct {
	*kv.KV
}

func New() *InMem {
	return &InMem{KV: kv.New(kvmap.New())}
}
