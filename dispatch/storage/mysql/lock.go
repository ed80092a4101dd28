package mysql

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/micromdm/nanoflow/dispatch/storage"
)

// lockName returns the server lock name for sessionID.
// Server lock names are limited to 64 characters.
func lockName(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return "nanoflow." + hex.EncodeToString(sum[:16])
}

// Lock implements the storage interface method.
// Session locks are MySQL named locks held on a dedicated connection so
// that they serialize writers across multiple servers.
func (s *MySQLStorage) Lock(ctx context.Context, sessionID string) (storage.UnlockFunc, error) {
	if sessionID == "" {
		return nil, storage.ErrMissingSessionID
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	name := lockName(sessionID)
	for {
		var got sql.NullInt64
		err = conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 0);`, name).Scan(&got)
		if err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("get lock: %w", err)
		}
		if got.Valid && got.Int64 == 1 {
			break
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(s.poll):
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// closing the connection also releases the lock
			conn.ExecContext(context.Background(), `DO RELEASE_LOCK(?);`, name)
			conn.Close()
		})
	}, nil
}
