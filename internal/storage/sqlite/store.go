package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"
	_ "modernc.org/sqlite"

	"weavesync/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS wbo (
	username TEXT NOT NULL,
	collection INTEGER NOT NULL,
	id TEXT NOT NULL,
	parentid TEXT,
	predecessorid TEXT,
	sortindex INTEGER,
	modified REAL,
	payload TEXT,
	payload_size INTEGER,
	PRIMARY KEY (username, collection, id)
);

CREATE INDEX IF NOT EXISTS idx_wbo_parent ON wbo(username, collection, parentid);
CREATE INDEX IF NOT EXISTS idx_wbo_predecessor ON wbo(username, collection, predecessorid);
CREATE INDEX IF NOT EXISTS idx_wbo_modified ON wbo(username, collection, modified);
CREATE INDEX IF NOT EXISTS idx_wbo_weight ON wbo(username, collection, sortindex);

CREATE TABLE IF NOT EXISTS collections (
	userid TEXT NOT NULL,
	collectionid INTEGER NOT NULL,
	name TEXT NOT NULL,
	PRIMARY KEY (userid, collectionid)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_collections_name ON collections(userid, name);

CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	alert TEXT
);
`

// Store is the SQLite-backed storage engine. The driver is pure Go, so this
// backend also carries the test suite for the engine semantics.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func Open(path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &Store{db: db, log: log.With("component", "sqlite_store")}, nil
}

// Init applies pragmas and the schema. SQLite self-initializes; there is no
// external migration step for this backend.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Session(_ context.Context, owner string) (storage.Session, error) {
	return newSession(s.db, owner, s.log), nil
}

func (s *Store) Heartbeat(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("heartbeat: %w", storage.ErrUnavailable)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle so the sqlite auth provider can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}
