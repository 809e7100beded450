package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"weavesync/internal/storage"
)

// Store backs the sync storage engine with a PostgreSQL pool. Schema
// management is left to the migration runner.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func New(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &Store{pool: pool, log: log.With("component", "postgres")}, nil
}

func (s *Store) Session(_ context.Context, owner string) (storage.Session, error) {
	return newSession(s.pool, owner, s.log), nil
}

func (s *Store) Heartbeat(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		s.log.Error("heartbeat failed", "error", err)
		return fmt.Errorf("heartbeat: %w", storage.ErrUnavailable)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool so the auth provider can share the
// same connection set.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
