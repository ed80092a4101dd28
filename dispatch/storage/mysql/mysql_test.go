package mysql

import (
	"os"
	"testing"

	"github.com/micromdm/nanoflow/dispatch/storage"
	"github.com/micromdm/nanoflow/dispatch/storage/test"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("NANOFLOW_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("NANOFLOW_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	test.TestFlowStorage(t, func() storage.Storage { return s })
}

func TestLockName(t *testing.T) {
	name := lockName("DEBUG-a-very-long-queue-name-for-testing:0A1B2C3D:with-a-long-suffix")
	if len(name) > 64 {
		t.Errorf("lock name too long: %d", len(name))
	}
	if have, want := lockName("CA:0A1B2C3D"), lockName("CA:0A1B2C3D"); have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if lockName("CA:0A1B2C3D") == lockName("CA:0A1B2C3E") {
		t.Error("expected distinct lock names")
	}
}
