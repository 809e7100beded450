package storage

import (
	"context"
	"errors"

	"weavesync/internal/domain/wbo"
)

var (
	// ErrUnavailable wraps every backend/driver failure. The protocol layer
	// maps it to 503; it must never look like a validation or not-found error.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned by RetrieveOne when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrNothingToUpdate is returned by Update when the record carried no
	// updatable fields at all. Distinct from success, but not a failure.
	ErrNothingToUpdate = errors.New("nothing to update")
)

// Engine is a storage backend selected once at startup. Sessions it hands
// out are scoped to a single owner for the lifetime of one request.
type Engine interface {
	Session(ctx context.Context, owner string) (Session, error)
	Heartbeat(ctx context.Context) error
	Close() error
}

// Session exposes every storage operation for one owner. Begin/Commit
// demarcate the batch-write transaction; a session is used by exactly one
// request worker and is not safe for concurrent use.
type Session interface {
	// CollectionList enumerates the owner's non-empty collections by name.
	CollectionList(ctx context.Context) ([]string, error)
	// CollectionTimestamps maps collection name to its max modified.
	CollectionTimestamps(ctx context.Context) (map[string]float64, error)
	// CollectionCounts maps collection name to its record count.
	CollectionCounts(ctx context.Context) (map[string]int, error)

	// MaxTimestamp is the optimistic-concurrency watermark; 0 when the
	// collection holds no records.
	MaxTimestamp(ctx context.Context, collection string) (float64, error)

	// Store upserts records wholesale: on key conflict every mutable field
	// is replaced, not merged.
	Store(ctx context.Context, records []*wbo.WBO) error
	// Update merges only the fields present on the record. A weight-only
	// change never advances modified.
	Update(ctx context.Context, record *wbo.WBO) error

	DeleteOne(ctx context.Context, collection, id string) error
	// DeleteMany removes exactly the set Retrieve would have listed for the
	// same filters, including sort/limit/offset combinations.
	DeleteMany(ctx context.Context, collection string, f Filters) error

	RetrieveOne(ctx context.Context, collection, id string) (*wbo.WBO, error)
	// Retrieve returns a forward-only cursor over ids or full records.
	Retrieve(ctx context.Context, collection string, f Filters, full bool) (Cursor, error)

	// StorageTotal is the owner's payload footprint in kilobytes.
	StorageTotal(ctx context.Context) (int, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Close() error
}

// Cursor is a single-pass, non-restartable row stream. Record is only
// meaningful when the cursor was opened with full=true.
type Cursor interface {
	Next() bool
	ID() string
	Record() *wbo.WBO
	Err() error
	Close() error
}
