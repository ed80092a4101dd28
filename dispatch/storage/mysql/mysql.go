// Package mysql implements a flow store backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/groob/plist"
	"github.com/micromdm/nanoflow/dispatch/storage"
)

// Schema contains the MySQL schema for the flow store.
//
//go:embed schema.sql
var Schema string

const (
	timestampFormat = "2006-01-02 15:04:05"

	// mysqlErrDupEntry is the server error number for duplicate keys.
	mysqlErrDupEntry = 1062
)

// MySQLStorage implements a storage.Storage using MySQL.
type MySQLStorage struct {
	db   *sql.DB
	poll time.Duration
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
	poll   time.Duration
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
// Default driver is "mysql" but is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithLockPoll sets how often a contended session lock is retried.
func WithLockPoll(d time.Duration) Option {
	return func(c *config) {
		c.poll = d
	}
}

// New creates and returns a new MySQLStorage.
// The DSN should include parseTime=true.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql", poll: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db, poll: cfg.poll}, nil
}

func sqlTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timestampFormat), Valid: true}
}

func marshalLogs(logs []string) ([]byte, error) {
	if logs == nil {
		logs = []string{}
	}
	b, err := plist.Marshal(logs)
	if err != nil {
		return nil, fmt.Errorf("marshal logs: %w", err)
	}
	return b, nil
}

// CreateInstance implements the storage interface method.
func (s *MySQLStorage) CreateInstance(ctx context.Context, i *storage.Instance) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("validating instance: %w", err)
	}
	logs, err := marshalLogs(i.Logs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx, `
INSERT INTO flow_instances
	(session_id, kind, client_id, status, next_state, reason, state, logs, created_at, updated_at)
VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		i.SessionID,
		i.Kind,
		i.ClientID,
		i.Status,
		i.NextState,
		i.Reason,
		i.State,
		logs,
		sqlTime(i.CreatedAt),
		sqlTime(i.UpdatedAt),
	)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrDupEntry {
		return fmt.Errorf("%w: %s", storage.ErrInstanceExists, i.SessionID)
	}
	return err
}

func (s *MySQLStorage) exists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT 1 FROM flow_instances WHERE session_id = ?;`,
		sessionID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Save implements the storage interface method.
func (s *MySQLStorage) Save(ctx context.Context, i *storage.Instance) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("validating instance: %w", err)
	}
	// rows affected does not count unchanged rows
	if ok, err := s.exists(ctx, i.SessionID); err != nil {
		return fmt.Errorf("checking instance exists: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, i.SessionID)
	}
	logs, err := marshalLogs(i.Logs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx, `
UPDATE flow_instances
SET
	kind = ?,
	client_id = ?,
	status = ?,
	next_state = ?,
	reason = ?,
	state = ?,
	logs = ?,
	created_at = ?,
	updated_at = ?
WHERE
	session_id = ?;`,
		i.Kind,
		i.ClientID,
		i.Status,
		i.NextState,
		i.Reason,
		i.State,
		logs,
		sqlTime(i.CreatedAt),
		sqlTime(i.UpdatedAt),
		i.SessionID,
	)
	return err
}

// Load implements the storage interface method.
func (s *MySQLStorage) Load(ctx context.Context, sessionID string) (*storage.Instance, error) {
	i := &storage.Instance{SessionID: sessionID}
	var (
		reason           sql.NullString
		logs             []byte
		created, updated sql.NullTime
	)
	err := s.db.QueryRowContext(
		ctx, `
SELECT
	kind, client_id, status, next_state, reason, state, logs, created_at, updated_at
FROM
	flow_instances
WHERE
	session_id = ?;`,
		sessionID,
	).Scan(
		&i.Kind,
		&i.ClientID,
		&i.Status,
		&i.NextState,
		&reason,
		&i.State,
		&logs,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, sessionID)
	} else if err != nil {
		return nil, err
	}
	i.Reason = reason.String
	if len(logs) > 0 {
		if err = plist.Unmarshal(logs, &i.Logs); err != nil {
			return nil, fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	if created.Valid {
		i.CreatedAt = created.Time.UTC()
	}
	if updated.Valid {
		i.UpdatedAt = updated.Time.UTC()
	}
	return i, nil
}

// DeleteInstance implements the storage interface method.
func (s *MySQLStorage) DeleteInstance(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return storage.ErrMissingSessionID
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM flow_instances WHERE session_id = ?;`, sessionID)
	return err
}
