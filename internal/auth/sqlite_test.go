package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
	_ "modernc.org/sqlite"

	"weavesync/internal/storage/sqlite"
)

func newAuthDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		alert TEXT
	)`)
	require.NoError(t, err)
	return db
}

func TestSQLiteProviderAuthenticate(t *testing.T) {
	db := newAuthDB(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", "alice", string(hash))
	require.NoError(t, err)

	p := NewSQLiteProvider(db, slog.Default())
	ctx := context.Background()

	ok, err := p.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Authenticate(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Authenticate(ctx, "nobody", "s3cret")
	require.NoError(t, err)
	assert.False(t, ok, "unknown user is a plain refusal")
}

// Runs against the schema the server actually creates, not a fixture
// table, so column constraints stay honest.
func TestSQLiteProviderAgainstServerSchema(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "weave.db"), slog.Default())
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	p := NewSQLiteProvider(store.DB(), slog.Default())
	ctx := context.Background()

	require.NoError(t, p.CreateUser(ctx, "alice", "s3cret"))

	ok, err := p.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.SetAlert(ctx, "alice", "scheduled maintenance"))
	alert, err := p.UserAlert(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "scheduled maintenance", alert)

	// clearing must work under the server schema too
	require.NoError(t, p.SetAlert(ctx, "alice", ""))
	alert, err = p.UserAlert(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, alert)

	require.NoError(t, p.DeleteUser(ctx, "alice"))
	ok, err = p.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteProviderUserAlert(t *testing.T) {
	db := newAuthDB(t)
	_, err := db.Exec("INSERT INTO users (username, password_hash, alert) VALUES (?, ?, ?)",
		"alice", "x", "maintenance at noon")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", "bob", "x")
	require.NoError(t, err)

	p := NewSQLiteProvider(db, slog.Default())
	ctx := context.Background()

	alert, err := p.UserAlert(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "maintenance at noon", alert)

	alert, err = p.UserAlert(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, alert)

	alert, err = p.UserAlert(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, alert)
}
