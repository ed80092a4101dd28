package inmem

import (
	"testing"

	"github.com/micromdm/nanoflow/subsystem/identity/storage"
	"github.com/micromdm/nanoflow/subsystem/identity/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestIdentityStorage(t, func() (storage.Storage, error) { return New(), nil })
}
