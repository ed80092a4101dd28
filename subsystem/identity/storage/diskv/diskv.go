// Package diskv implements a diskv-backed identity subsystem storage backend.
package diskv

import (
	"path/filepath"

	"github.com/micromdm/nanoflow/subsystem/identity/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is a diskv-backed identity storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new identity store on disk at path.
func New(path string) *Diskv {
	return &Diskv{
		KV: kv.New(kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "identity"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		}))),
	}
}
