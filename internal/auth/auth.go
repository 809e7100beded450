// Package auth verifies sync credentials against the users table.
package auth

import (
	"context"
	"errors"
)

var ErrUnknownUser = errors.New("unknown user")

// Provider answers two questions about an account: do these credentials
// belong to it, and is there an operator alert to relay to its client.
type Provider interface {
	// Authenticate reports whether password matches the stored hash for
	// username. An unknown user is a plain false, not an error.
	Authenticate(ctx context.Context, username, password string) (bool, error)

	// UserAlert returns the alert text set for the account, or "" when
	// none is set.
	UserAlert(ctx context.Context, username string) (string, error)
}
