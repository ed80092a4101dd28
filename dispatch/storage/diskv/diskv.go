// Package diskv implements a flow store backend using the diskv key-value store.
package diskv

import (
	"path/filepath"

	"github.com/micromdm/nanoflow/dispatch/storage/kv"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is a a diskv-backed flow store backend.
type Diskv struct {
	*kv.KV
}

// New creates a new flow store rooted at path.
func New(path string) *Diskv {
	return &Diskv{
		KV: kv.New(kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "flow", "instance"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		}))),
	}
}
