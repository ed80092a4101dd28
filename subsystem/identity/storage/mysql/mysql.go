// Package mysql implements an identity subsystem storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/micromdm/nanoflow/subsystem/identity/storage"
)

// Schema contains the MySQL schema for the identity storage.
//
//go:embed schema.sql
var Schema string

// MySQLStorage implements a storage.Storage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
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
//
// Default driver is "mysql".
// Value is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
//
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQLStorage.
// The DSN should include parseTime=true.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
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
	return &MySQLStorage{db: cfg.db}, nil
}

const timestampFormat = "2006-01-02 15:04:05"

// RetrieveCertificate implements the storage interface method.
func (s *MySQLStorage) RetrieveCertificate(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, storage.ErrNoID
	}
	var cert []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT certificate FROM identity_clients WHERE client_id = ?;`,
		id,
	).Scan(&cert)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cert, err
}

// RetrieveRecord implements the storage interface method.
func (s *MySQLStorage) RetrieveRecord(ctx context.Context, id string) (*storage.Record, error) {
	if id == "" {
		return nil, storage.ErrNoID
	}
	r := &storage.Record{ID: id}
	err := s.db.QueryRowContext(
		ctx,
		`SELECT certificate, first_seen FROM identity_clients WHERE client_id = ?;`,
		id,
	).Scan(&r.Certificate, &r.FirstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, id)
	} else if err != nil {
		return nil, err
	}
	r.FirstSeen = r.FirstSeen.UTC()
	return r, nil
}

// StoreCertificate implements the storage interface method.
func (s *MySQLStorage) StoreCertificate(ctx context.Context, id string, cert []byte, firstSeen time.Time) error {
	if id == "" {
		return storage.ErrNoID
	}
	if len(cert) < 1 {
		return storage.ErrNoCertificate
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO identity_clients
	(client_id, certificate, first_seen)
VALUES
	(?, ?, ?) as new
ON DUPLICATE KEY UPDATE
	certificate = new.certificate;`,
		id,
		cert,
		firstSeen.UTC().Format(timestampFormat),
	)
	return err
}

// DeleteRecord implements the storage interface method.
func (s *MySQLStorage) DeleteRecord(ctx context.Context, id string) error {
	if id == "" {
		return storage.ErrNoID
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM identity_clients WHERE client_id = ?;`, id)
	return err
}
