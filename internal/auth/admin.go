package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Admin is the provisioning side of a credential store. Only operator
// tooling uses it; the sync server never creates or removes accounts.
type Admin interface {
	// CreateUser inserts an account with a bcrypt-hashed password.
	CreateUser(ctx context.Context, username, password string) error
	// DeleteUser removes the account and purges every record and
	// collection mapping the owner holds.
	DeleteUser(ctx context.Context, username string) error
	// SetAlert sets or clears (empty string) the account's alert text.
	SetAlert(ctx context.Context, username, alert string) error
}

func (p *PostgresProvider) CreateUser(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2)", username, string(hash))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (p *PostgresProvider) DeleteUser(ctx context.Context, username string) error {
	for _, q := range []string{
		"DELETE FROM wbo WHERE username = $1",
		"DELETE FROM collections WHERE userid = $1",
		"DELETE FROM users WHERE username = $1",
	} {
		if _, err := p.pool.Exec(ctx, q, username); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
	}
	return nil
}

func (p *PostgresProvider) SetAlert(ctx context.Context, username, alert string) error {
	var value *string
	if alert != "" {
		value = &alert
	}
	_, err := p.pool.Exec(ctx,
		"UPDATE users SET alert = $1 WHERE username = $2", value, username)
	if err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}

func (p *SQLiteProvider) CreateUser(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)", username, string(hash))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (p *SQLiteProvider) DeleteUser(ctx context.Context, username string) error {
	for _, q := range []string{
		"DELETE FROM wbo WHERE username = ?",
		"DELETE FROM collections WHERE userid = ?",
		"DELETE FROM users WHERE username = ?",
	} {
		if _, err := p.db.ExecContext(ctx, q, username); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
	}
	return nil
}

func (p *SQLiteProvider) SetAlert(ctx context.Context, username, alert string) error {
	var value any
	if alert != "" {
		value = alert
	}
	_, err := p.db.ExecContext(ctx,
		"UPDATE users SET alert = ? WHERE username = ?", value, username)
	if err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}
