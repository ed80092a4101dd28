package diskv

import (
	"testing"

	"github.com/micromdm/nanoflow/subsystem/identity/storage"
	"github.com/micromdm/nanoflow/subsystem/identity/storage/test"
)

func TestDiskv(t *testing.T) {
	dir := t.TempDir()
	test.TestIdentityStorage(t, func() (storage.Storage, error) { return New(dir), nil })
}
