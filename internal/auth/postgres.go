package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// PostgresProvider checks credentials against the users table over a
// shared pgx pool.
type PostgresProvider struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresProvider(pool *pgxpool.Pool, log *slog.Logger) *PostgresProvider {
	return &PostgresProvider{pool: pool, log: log.With("component", "auth")}
}

func (p *PostgresProvider) Authenticate(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := p.pool.QueryRow(ctx,
		"SELECT password_hash FROM users WHERE username = $1", username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		p.log.Error("authenticate query failed", "username", username, "error", err)
		return false, fmt.Errorf("authenticate: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

func (p *PostgresProvider) UserAlert(ctx context.Context, username string) (string, error) {
	var alert *string
	err := p.pool.QueryRow(ctx,
		"SELECT alert FROM users WHERE username = $1", username).Scan(&alert)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("user alert: %w", err)
	}
	if alert == nil {
		return "", nil
	}
	return *alert, nil
}
