package diskv

import (
	"testing"

	"github.com/micromdm/nanoflow/dispatch/storage"
	"github.com/micromdm/nanoflow/dispatch/storage/test"
)

func TestDiskvStorage(t *testing.T) {
	dir := t.TempDir()
	test.TestFlowStorage(t, func() storage.Storage { return New(dir) })
}
