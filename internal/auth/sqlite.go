package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// SQLiteProvider checks credentials against the users table in the same
// database file the storage engine uses.
type SQLiteProvider struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteProvider(db *sql.DB, log *slog.Logger) *SQLiteProvider {
	return &SQLiteProvider{db: db, log: log.With("component", "auth")}
}

func (p *SQLiteProvider) Authenticate(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := p.db.QueryRowContext(ctx,
		"SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		p.log.Error("authenticate query failed", "username", username, "error", err)
		return false, fmt.Errorf("authenticate: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

func (p *SQLiteProvider) UserAlert(ctx context.Context, username string) (string, error) {
	var alert sql.NullString
	err := p.db.QueryRowContext(ctx,
		"SELECT alert FROM users WHERE username = ?", username).Scan(&alert)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("user alert: %w", err)
	}
	return alert.String, nil
}
