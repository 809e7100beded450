package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"weavesync/internal/domain/collection"
	"weavesync/internal/domain/wbo"
	"weavesync/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "weave.db"), slog.Default())
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newSessionFor(t *testing.T, store *Store, owner string) storage.Session {
	t.Helper()
	sess, err := store.Session(context.Background(), owner)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func record(collectionName, id, payload string) *wbo.WBO {
	w := &wbo.WBO{ID: id, Collection: collectionName, Payload: &payload, PayloadSize: len(payload)}
	w.SetModified(wbo.Timestamp(time.Now()))
	return w
}

func mustStore(t *testing.T, sess storage.Session, recs ...*wbo.WBO) {
	t.Helper()
	require.NoError(t, sess.Store(context.Background(), recs))
}

func listIDs(t *testing.T, sess storage.Session, collectionName string, f storage.Filters) []string {
	t.Helper()
	cur, err := sess.Retrieve(context.Background(), collectionName, f, false)
	require.NoError(t, err)
	defer cur.Close()
	ids := []string{}
	for cur.Next() {
		ids = append(ids, cur.ID())
	}
	require.NoError(t, cur.Err())
	return ids
}

func TestStoreRetrieveRoundtrip(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	parent := "folder1"
	idx := 42
	in := record("bookmarks", "rec1", `{"title":"x"}`)
	in.ParentID = &parent
	in.SortIndex = &idx
	mustStore(t, sess, in)

	out, err := sess.RetrieveOne(context.Background(), "bookmarks", "rec1")
	require.NoError(t, err)

	assert.Equal(t, "rec1", out.ID)
	require.NotNil(t, out.ParentID)
	assert.Equal(t, "folder1", *out.ParentID)
	require.NotNil(t, out.SortIndex)
	assert.Equal(t, 42, *out.SortIndex)
	require.NotNil(t, out.Payload)
	assert.Equal(t, `{"title":"x"}`, *out.Payload)
	assert.Equal(t, len(`{"title":"x"}`), out.PayloadSize, "payload_size recomputed from payload")
	assert.Equal(t, *in.Modified, *out.Modified)
}

func TestRetrieveOneMiss(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	_, err := sess.RetrieveOne(context.Background(), "bookmarks", "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreIsFullReplace(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	parent := "folder1"
	first := record("bookmarks", "rec1", "one")
	first.ParentID = &parent
	mustStore(t, sess, first)

	// second store has no parentid; replace must clear it, not merge
	mustStore(t, sess, record("bookmarks", "rec1", "two"))

	out, err := sess.RetrieveOne(context.Background(), "bookmarks", "rec1")
	require.NoError(t, err)
	assert.Nil(t, out.ParentID)
	assert.Equal(t, "two", *out.Payload)
}

func TestUpdateMergesOnlyPresentFields(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	parent := "folder1"
	base := record("bookmarks", "rec1", "data")
	base.ParentID = &parent
	mustStore(t, sess, base)

	idx := 7
	upd := &wbo.WBO{ID: "rec1", Collection: "bookmarks", SortIndex: &idx}
	require.NoError(t, sess.Update(context.Background(), upd))

	out, err := sess.RetrieveOne(context.Background(), "bookmarks", "rec1")
	require.NoError(t, err)
	require.NotNil(t, out.SortIndex)
	assert.Equal(t, 7, *out.SortIndex)
	require.NotNil(t, out.ParentID)
	assert.Equal(t, "folder1", *out.ParentID, "absent fields untouched")
	assert.Equal(t, "data", *out.Payload)
}

func TestWeightOnlyUpdateKeepsModified(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	base := record("bookmarks", "rec1", "data")
	mustStore(t, sess, base)
	before := *base.Modified

	idx := 9
	later := wbo.Round(before + 100)
	upd := &wbo.WBO{ID: "rec1", Collection: "bookmarks", SortIndex: &idx, Modified: &later}
	require.NoError(t, sess.Update(context.Background(), upd))

	out, err := sess.RetrieveOne(context.Background(), "bookmarks", "rec1")
	require.NoError(t, err)
	assert.Equal(t, before, *out.Modified, "weight-only change must not advance modified")

	// a payload update does advance it
	payload := "new"
	upd2 := &wbo.WBO{ID: "rec1", Collection: "bookmarks", Payload: &payload, PayloadSize: 3, Modified: &later}
	require.NoError(t, sess.Update(context.Background(), upd2))

	out, err = sess.RetrieveOne(context.Background(), "bookmarks", "rec1")
	require.NoError(t, err)
	assert.Equal(t, later, *out.Modified)
}

func TestUpdateNothingToUpdate(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")
	mustStore(t, sess, record("bookmarks", "rec1", "data"))

	err := sess.Update(context.Background(), &wbo.WBO{ID: "rec1", Collection: "bookmarks"})
	assert.ErrorIs(t, err, storage.ErrNothingToUpdate)
}

func TestMaxTimestamp(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	ts, err := sess.MaxTimestamp(context.Background(), "bookmarks")
	require.NoError(t, err)
	assert.Zero(t, ts, "empty collection has watermark 0")

	rec := record("bookmarks", "rec1", "data")
	mustStore(t, sess, rec)

	ts, err = sess.MaxTimestamp(context.Background(), "bookmarks")
	require.NoError(t, err)
	assert.Equal(t, *rec.Modified, ts)
}

func TestFilteredRetrieve(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	mk := func(id string, sortindex int, modified float64, parent string) *wbo.WBO {
		payload := "p-" + id
		w := &wbo.WBO{ID: id, Collection: "bookmarks", Payload: &payload, PayloadSize: len(payload)}
		w.SortIndex = &sortindex
		w.SetModified(modified)
		if parent != "" {
			w.ParentID = &parent
		}
		return w
	}
	mustStore(t, sess,
		mk("a", 10, 1000.10, "root"),
		mk("b", 30, 1000.20, "root"),
		mk("c", 20, 1000.30, "other"),
		mk("d", 40, 1000.40, "root"),
	)

	t.Run("parentid", func(t *testing.T) {
		ids := listIDs(t, sess, "bookmarks", storage.Filters{ParentID: "root"})
		assert.ElementsMatch(t, []string{"a", "b", "d"}, ids)
	})

	t.Run("newer and older are exclusive", func(t *testing.T) {
		newer, older := 1000.10, 1000.40
		ids := listIDs(t, sess, "bookmarks", storage.Filters{Newer: &newer, Older: &older})
		assert.ElementsMatch(t, []string{"b", "c"}, ids)
	})

	t.Run("index bounds are exclusive and bind their own values", func(t *testing.T) {
		above, below := 10, 40
		ids := listIDs(t, sess, "bookmarks", storage.Filters{ParentID: "root", IndexAbove: &above, IndexBelow: &below})
		assert.ElementsMatch(t, []string{"b"}, ids)
	})

	t.Run("sort index descending", func(t *testing.T) {
		ids := listIDs(t, sess, "bookmarks", storage.Filters{Sort: storage.SortIndex})
		assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
	})

	t.Run("sort newest with limit and offset", func(t *testing.T) {
		ids := listIDs(t, sess, "bookmarks", storage.Filters{Sort: storage.SortNewest, Limit: 2, Offset: 1})
		assert.Equal(t, []string{"c", "b"}, ids)
	})

	t.Run("ids membership", func(t *testing.T) {
		ids := listIDs(t, sess, "bookmarks", storage.Filters{IDs: []string{"a", "d", "zzz"}})
		assert.ElementsMatch(t, []string{"a", "d"}, ids)
	})

	t.Run("full retrieval carries payloads through", func(t *testing.T) {
		cur, err := sess.Retrieve(context.Background(), "bookmarks", storage.Filters{ID: "a"}, true)
		require.NoError(t, err)
		defer cur.Close()
		require.True(t, cur.Next())
		rec := cur.Record()
		assert.Equal(t, "p-a", *rec.Payload)
		assert.False(t, cur.Next())
	})
}

// DeleteMany must remove exactly what Retrieve would have listed for the
// same filters, including windowed combinations.
func TestDeleteManyMatchesRetrieve(t *testing.T) {
	store := newStore(t)

	cases := []struct {
		name string
		f    storage.Filters
	}{
		{"parent filter", storage.Filters{ParentID: "root"}},
		{"sorted window", storage.Filters{Sort: storage.SortNewest, Limit: 2, Offset: 1}},
		{"index sorted limit", storage.Filters{Sort: storage.SortIndex, Limit: 3}},
		{"range", func() storage.Filters { n := 1000.15; return storage.Filters{Newer: &n} }()},
		{"everything", storage.Filters{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := newSessionFor(t, store, "owner-"+tc.name)
			mk := func(id string, sortindex int, modified float64, parent string) *wbo.WBO {
				payload := "p"
				w := &wbo.WBO{ID: id, Collection: "bookmarks", Payload: &payload, PayloadSize: 1}
				w.SortIndex = &sortindex
				w.SetModified(modified)
				if parent != "" {
					w.ParentID = &parent
				}
				return w
			}
			mustStore(t, sess,
				mk("a", 10, 1000.10, "root"),
				mk("b", 30, 1000.20, "root"),
				mk("c", 20, 1000.30, "other"),
				mk("d", 40, 1000.40, "root"),
				mk("e", 50, 1000.50, ""),
			)

			expected := listIDs(t, sess, "bookmarks", tc.f)
			require.NoError(t, sess.DeleteMany(context.Background(), "bookmarks", tc.f))

			remaining := listIDs(t, sess, "bookmarks", storage.Filters{})
			for _, id := range expected {
				assert.NotContains(t, remaining, id)
			}
			assert.Len(t, remaining, 5-len(expected))
		})
	}
}

func TestDeleteManyNoMatchesSucceeds(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")
	assert.NoError(t, sess.DeleteMany(context.Background(), "bookmarks", storage.Filters{ParentID: "ghost", Limit: 5}))
}

func TestDeleteOneIsIdempotent(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")
	mustStore(t, sess, record("bookmarks", "rec1", "data"))

	require.NoError(t, sess.DeleteOne(context.Background(), "bookmarks", "rec1"))
	require.NoError(t, sess.DeleteOne(context.Background(), "bookmarks", "rec1"))

	_, err := sess.RetrieveOne(context.Background(), "bookmarks", "rec1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDynamicCollectionAllocation(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	mustStore(t, sess, record("recipes", "r1", "data"))

	// a fresh session resolves the same id back from the mapping table
	sess2 := newSessionFor(t, store, "alice")
	out, err := sess2.RetrieveOne(context.Background(), "recipes", "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", out.ID)

	list, err := sess2.CollectionList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"recipes"}, list)

	// different owner gets its own numbering, no cross-owner visibility
	bob := newSessionFor(t, store, "bob")
	_, err = bob.RetrieveOne(context.Background(), "recipes", "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCollectionAggregates(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	b1 := record("bookmarks", "b1", "data")
	b1.SetModified(2000.10)
	b2 := record("bookmarks", "b2", "data")
	b2.SetModified(2000.30)
	h1 := record("history", "h1", "data")
	h1.SetModified(2000.20)
	mustStore(t, sess, b1, b2, h1)

	stamps, err := sess.CollectionTimestamps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"bookmarks": 2000.30, "history": 2000.20}, stamps)

	counts, err := sess.CollectionCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bookmarks": 2, "history": 1}, counts)
}

func TestStorageTotal(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")

	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'x'
	}
	mustStore(t, sess, record("bookmarks", "b1", string(big)))

	kb, err := sess.StorageTotal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, kb)
}

func TestTransactionCommitsDespiteMidBatchSkip(t *testing.T) {
	store := newStore(t)
	sess := newSessionFor(t, store, "alice")
	ctx := context.Background()

	require.NoError(t, sess.Begin(ctx))
	mustStore(t, sess, record("bookmarks", "ok1", "data"))
	// a fragment that fails validation never reaches the engine; its
	// siblings still commit
	mustStore(t, sess, record("bookmarks", "ok2", "data"))
	require.NoError(t, sess.Commit(ctx))

	ids := listIDs(t, sess, "bookmarks", storage.Filters{})
	assert.ElementsMatch(t, []string{"ok1", "ok2"}, ids)
}

func TestAllocatorMapperConformance(t *testing.T) {
	// the session satisfies the namespace's Mapper contract directly
	store := newStore(t)
	sess, err := store.Session(context.Background(), "alice")
	require.NoError(t, err)
	defer sess.Close()

	var _ collection.Mapper = sess.(*session)
}

func TestHeartbeat(t *testing.T) {
	store := newStore(t)
	assert.NoError(t, store.Heartbeat(context.Background()))
}
