package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"weavesync/internal/domain/collection"
	"weavesync/internal/domain/wbo"
	"weavesync/internal/storage"
)

const wboColumns = "id, parentid, predecessorid, sortindex, modified, payload, payload_size"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session is one owner's view of the store for the lifetime of a request.
type session struct {
	db    *sql.DB
	tx    *sql.Tx
	owner string
	ns    *collection.Namespace
	log   *slog.Logger
}

func newSession(db *sql.DB, owner string, log *slog.Logger) *session {
	s := &session{db: db, owner: owner, log: log}
	s.ns = collection.NewNamespace(owner, s)
	return s
}

func (s *session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// unavailable logs a driver failure and folds it into the one retryable
// infrastructure error the protocol layer knows about.
func (s *session) unavailable(op string, err error) error {
	s.log.Error(op, "owner", s.owner, "error", err)
	return fmt.Errorf("%s: %w", op, storage.ErrUnavailable)
}

// ----- collection.Mapper -----

func (s *session) LookupID(ctx context.Context, owner, name string) (int, error) {
	var id int
	err := s.q().QueryRowContext(ctx,
		"SELECT collectionid FROM collections WHERE userid = ? AND name = ?", owner, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, collection.ErrNoMapping
	}
	if err != nil {
		return 0, s.unavailable("lookup collection id", err)
	}
	return id, nil
}

func (s *session) LookupName(ctx context.Context, owner string, id int) (string, error) {
	var name string
	err := s.q().QueryRowContext(ctx,
		"SELECT name FROM collections WHERE userid = ? AND collectionid = ?", owner, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", collection.ErrNoMapping
	}
	if err != nil {
		return "", s.unavailable("lookup collection name", err)
	}
	return name, nil
}

func (s *session) Allocate(ctx context.Context, owner, name string) (int, error) {
	var max sql.NullInt64
	err := s.q().QueryRowContext(ctx,
		"SELECT MAX(collectionid) FROM collections WHERE userid = ?", owner).Scan(&max)
	if err != nil {
		return 0, s.unavailable("allocate collection id", err)
	}
	id := collection.FirstDynamicID
	if max.Valid && int(max.Int64) > id {
		id = int(max.Int64)
	}
	id++

	_, err = s.q().ExecContext(ctx,
		"INSERT INTO collections (userid, collectionid, name) VALUES (?, ?, ?)", owner, id, name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, collection.ErrConflict
		}
		return 0, s.unavailable("allocate collection id", err)
	}
	return id, nil
}

func (s *session) LoadAll(ctx context.Context, owner string) (map[int]string, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT collectionid, name FROM collections WHERE userid = ?", owner)
	if err != nil {
		return nil, s.unavailable("load collections", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, s.unavailable("load collections", err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("load collections", err)
	}
	return out, nil
}

// ----- storage.Session -----

func (s *session) CollectionList(ctx context.Context) ([]string, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT DISTINCT collection FROM wbo WHERE username = ?", s.owner)
	if err != nil {
		return nil, s.unavailable("collection list", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, s.unavailable("collection list", err)
		}
		name, err := s.ns.ReconcileName(ctx, id)
		if errors.Is(err, collection.ErrNoMapping) {
			continue // orphaned id, nothing maps to it
		}
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("collection list", err)
	}
	return names, nil
}

func (s *session) CollectionTimestamps(ctx context.Context) (map[string]float64, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT collection, MAX(modified) FROM wbo WHERE username = ? GROUP BY collection", s.owner)
	if err != nil {
		return nil, s.unavailable("collection timestamps", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id int
		var ts sql.NullFloat64
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, s.unavailable("collection timestamps", err)
		}
		name, err := s.ns.ReconcileName(ctx, id)
		if errors.Is(err, collection.ErrNoMapping) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = wbo.Round(ts.Float64)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("collection timestamps", err)
	}
	return out, nil
}

func (s *session) CollectionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT collection, COUNT(*) FROM wbo WHERE username = ? GROUP BY collection", s.owner)
	if err != nil {
		return nil, s.unavailable("collection counts", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id, ct int
		if err := rows.Scan(&id, &ct); err != nil {
			return nil, s.unavailable("collection counts", err)
		}
		name, err := s.ns.ReconcileName(ctx, id)
		if errors.Is(err, collection.ErrNoMapping) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = ct
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("collection counts", err)
	}
	return out, nil
}

func (s *session) MaxTimestamp(ctx context.Context, name string) (float64, error) {
	if name == "" {
		return 0, nil
	}
	cid, err := s.ns.Resolve(ctx, name)
	if err != nil {
		return 0, err
	}
	var ts sql.NullFloat64
	err = s.q().QueryRowContext(ctx,
		"SELECT MAX(modified) FROM wbo WHERE username = ? AND collection = ?", s.owner, cid).Scan(&ts)
	if err != nil {
		return 0, s.unavailable("max timestamp", err)
	}
	return wbo.Round(ts.Float64), nil
}

func (s *session) Store(ctx context.Context, records []*wbo.WBO) error {
	const upsert = `
		INSERT INTO wbo (username, collection, id, parentid, predecessorid, sortindex, modified, payload, payload_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username, collection, id) DO UPDATE SET
			parentid = excluded.parentid,
			predecessorid = excluded.predecessorid,
			sortindex = excluded.sortindex,
			modified = excluded.modified,
			payload = excluded.payload,
			payload_size = excluded.payload_size`

	for _, rec := range records {
		cid, err := s.ns.Resolve(ctx, rec.Collection)
		if err != nil {
			return err
		}
		_, err = s.q().ExecContext(ctx, upsert,
			s.owner, cid, rec.ID,
			rec.ParentID, rec.PredecessorID, rec.SortIndex,
			rec.Modified, rec.Payload, rec.PayloadSize)
		if err != nil {
			return s.unavailable("store record", err)
		}
	}
	return nil
}

func (s *session) Update(ctx context.Context, rec *wbo.WBO) error {
	var set []string
	var args []any

	if rec.ParentID != nil {
		set = append(set, "parentid = ?")
		args = append(args, *rec.ParentID)
	}
	if rec.PredecessorID != nil {
		set = append(set, "predecessorid = ?")
		args = append(args, *rec.PredecessorID)
	}
	if rec.SortIndex != nil {
		set = append(set, "sortindex = ?")
		args = append(args, *rec.SortIndex)
	}
	if rec.Payload != nil {
		set = append(set, "payload = ?", "payload_size = ?")
		args = append(args, *rec.Payload, rec.PayloadSize)
	}

	// A weight-only change is purely for sorting trees: the watermark must
	// not move, so the modified column is omitted entirely.
	if rec.HasParentID() || rec.HasPayload() {
		if rec.Modified == nil {
			rec.SetModified(wbo.Timestamp(time.Now()))
		}
		set = append(set, "modified = ?")
		args = append(args, *rec.Modified)
	}

	if len(set) == 0 {
		return storage.ErrNothingToUpdate
	}

	cid, err := s.ns.Resolve(ctx, rec.Collection)
	if err != nil {
		return err
	}
	args = append(args, s.owner, cid, rec.ID)

	query := "UPDATE wbo SET " + strings.Join(set, ", ") +
		" WHERE username = ? AND collection = ? AND id = ?"
	if _, err := s.q().ExecContext(ctx, query, args...); err != nil {
		return s.unavailable("update record", err)
	}
	return nil
}

func (s *session) DeleteOne(ctx context.Context, name, id string) error {
	cid, err := s.ns.Resolve(ctx, name)
	if err != nil {
		return err
	}
	_, err = s.q().ExecContext(ctx,
		"DELETE FROM wbo WHERE username = ? AND collection = ? AND id = ?", s.owner, cid, id)
	if err != nil {
		return s.unavailable("delete record", err)
	}
	return nil
}

func (s *session) DeleteMany(ctx context.Context, name string, f storage.Filters) error {
	cid, err := s.ns.Resolve(ctx, name)
	if err != nil {
		return err
	}

	if f.Windowed() {
		// SQLite cannot sort or window a DELETE, so grab the id set the
		// equivalent SELECT would return and delete exactly that set.
		ids, err := s.filteredIDs(ctx, cid, f)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		exact := storage.Filters{IDs: ids}
		where, args := exact.Where(storage.DialectSQLite, s.owner, cid)
		if _, err := s.q().ExecContext(ctx, "DELETE FROM wbo WHERE "+where, args...); err != nil {
			return s.unavailable("delete records", err)
		}
		return nil
	}

	where, args := f.Where(storage.DialectSQLite, s.owner, cid)
	if _, err := s.q().ExecContext(ctx, "DELETE FROM wbo WHERE "+where, args...); err != nil {
		return s.unavailable("delete records", err)
	}
	return nil
}

func (s *session) filteredIDs(ctx context.Context, cid int, f storage.Filters) ([]string, error) {
	where, args := f.Where(storage.DialectSQLite, s.owner, cid)
	rows, err := s.q().QueryContext(ctx, "SELECT id FROM wbo WHERE "+where+f.Tail(), args...)
	if err != nil {
		return nil, s.unavailable("select delete targets", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.unavailable("select delete targets", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("select delete targets", err)
	}
	return ids, nil
}

func (s *session) RetrieveOne(ctx context.Context, name, id string) (*wbo.WBO, error) {
	cid, err := s.ns.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	row := s.q().QueryRowContext(ctx,
		"SELECT "+wboColumns+" FROM wbo WHERE username = ? AND collection = ? AND id = ?",
		s.owner, cid, id)

	rec, err := scanWBO(row, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, s.unavailable("retrieve record", err)
	}
	return rec, nil
}

func (s *session) Retrieve(ctx context.Context, name string, f storage.Filters, full bool) (storage.Cursor, error) {
	cid, err := s.ns.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	columns := "id"
	if full {
		columns = wboColumns
	}
	where, args := f.Where(storage.DialectSQLite, s.owner, cid)
	rows, err := s.q().QueryContext(ctx,
		"SELECT "+columns+" FROM wbo WHERE "+where+f.Tail(), args...)
	if err != nil {
		return nil, s.unavailable("retrieve records", err)
	}
	return &cursor{rows: rows, full: full, collection: name}, nil
}

func (s *session) StorageTotal(ctx context.Context) (int, error) {
	var kb sql.NullInt64
	err := s.q().QueryRowContext(ctx,
		"SELECT CAST(ROUND(COALESCE(SUM(LENGTH(payload)), 0) / 1024.0) AS INTEGER) FROM wbo WHERE username = ?",
		s.owner).Scan(&kb)
	if err != nil {
		return 0, s.unavailable("storage total", err)
	}
	return int(kb.Int64), nil
}

func (s *session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.unavailable("begin transaction", err)
	}
	s.tx = tx
	return nil
}

func (s *session) Commit(_ context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return s.unavailable("commit transaction", err)
	}
	return nil
}

func (s *session) Close() error {
	if s.tx != nil {
		err := s.tx.Rollback()
		s.tx = nil
		return err
	}
	return nil
}

// cursor streams one result set, forward-only.
type cursor struct {
	rows       *sql.Rows
	full       bool
	collection string

	id  string
	rec *wbo.WBO
	err error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	if c.full {
		rec, err := scanWBO(c.rows, c.collection)
		if err != nil {
			c.err = err
			return false
		}
		c.rec = rec
		c.id = rec.ID
		return true
	}
	if err := c.rows.Scan(&c.id); err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *cursor) ID() string       { return c.id }
func (c *cursor) Record() *wbo.WBO { return c.rec }
func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}
func (c *cursor) Close() error { return c.rows.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanWBO(row scanner, collectionName string) (*wbo.WBO, error) {
	var (
		rec           wbo.WBO
		parentID      sql.NullString
		predecessorID sql.NullString
		sortIndex     sql.NullInt64
		modified      sql.NullFloat64
		payload       sql.NullString
		payloadSize   sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &parentID, &predecessorID, &sortIndex, &modified, &payload, &payloadSize); err != nil {
		return nil, err
	}
	rec.Collection = collectionName
	if parentID.Valid {
		rec.ParentID = &parentID.String
	}
	if predecessorID.Valid {
		rec.PredecessorID = &predecessorID.String
	}
	if sortIndex.Valid {
		idx := int(sortIndex.Int64)
		rec.SortIndex = &idx
	}
	if modified.Valid {
		rec.SetModified(modified.Float64)
	}
	if payload.Valid {
		rec.Payload = &payload.String
	}
	rec.PayloadSize = int(payloadSize.Int64)
	return &rec, nil
}
