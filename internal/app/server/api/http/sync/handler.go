// Package sync implements the Weave 1.0 storage protocol: collection
// listings, filtered reads, single and batch writes, and filtered
// deletes, all scoped to the owner named in the path.
package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"weavesync/internal/domain/wbo"
	"weavesync/internal/storage"
)

// unmodifiedSinceHeader carries the client's last known collection
// watermark; a newer server-side write fails the request with 412.
const unmodifiedSinceHeader = "X-If-Unmodified-Since"

type Handler struct {
	engine     storage.Engine
	maxPayload int
	log        *slog.Logger
}

func NewHandler(engine storage.Engine, maxPayload int, log *slog.Logger) *Handler {
	return &Handler{
		engine:     engine,
		maxPayload: maxPayload,
		log:        log.With("component", "sync_handler"),
	}
}

// SetupRoutes attaches the protocol verbs under an already-matched
// /{owner} route.
func (h *Handler) SetupRoutes(r chi.Router) {
	// registered first so the /{collection} subrouter inherits it
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadRequest, "1")
	})

	r.Get("/", h.collectionInfo)
	r.Route("/{collection}", func(r chi.Router) {
		r.Get("/", h.retrieveMany)
		r.Post("/", h.batchWrite)
		r.Delete("/", h.deleteMany)
		r.Get("/{id}", h.retrieveOne)
		r.Put("/{id}", h.storeOne)
		r.Delete("/{id}", h.deleteOne)
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (storage.Session, bool) {
	owner := chi.URLParam(r, "owner")
	sess, err := h.engine.Session(r.Context(), owner)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return sess, true
}

// checkPrecondition enforces the unmodified-since contract before any
// mutation. Returns false when the request must not proceed.
func (h *Handler) checkPrecondition(w http.ResponseWriter, r *http.Request, sess storage.Session, collection string) bool {
	raw := r.Header.Get(unmodifiedSinceHeader)
	if raw == "" {
		return true
	}
	since, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "1")
		return false
	}
	max, err := sess.MaxTimestamp(r.Context(), collection)
	if err != nil {
		h.fail(w, err)
		return false
	}
	if wbo.Round(max) > wbo.Round(since) {
		writeError(w, http.StatusPreconditionFailed, "4")
		return false
	}
	return true
}

// GET /{owner} with optional ?info=timestamps|counts.
func (h *Handler) collectionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	switch r.URL.Query().Get("info") {
	case "timestamps":
		stamps, err := sess.CollectionTimestamps(r.Context())
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, stamps)
	case "counts":
		counts, err := sess.CollectionCounts(r.Context())
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, counts)
	default:
		list, err := sess.CollectionList(r.Context())
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, list)
	}
}

// GET /{owner}/{collection}/{id}
func (h *Handler) retrieveOne(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	rec, err := sess.RetrieveOne(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, rec)
}

// GET /{owner}/{collection} streams matching ids, or full records with
// ?full=1, without materializing the result set.
func (h *Handler) retrieveMany(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "1")
		return
	}
	// "0" means off, matching the loose truthiness Weave clients expect
	rawFull := r.URL.Query().Get("full")
	full := rawFull != "" && rawFull != "0"

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	cur, err := sess.Retrieve(r.Context(), chi.URLParam(r, "collection"), filters, full)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer cur.Close()

	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, "[")
	first := true
	for cur.Next() {
		var element []byte
		if full {
			element, err = json.Marshal(cur.Record())
		} else {
			element, err = json.Marshal(cur.ID())
		}
		if err != nil {
			break
		}
		if !first {
			io.WriteString(w, ",")
		}
		first = false
		w.Write(element)
	}
	if err := cur.Err(); err != nil {
		// headers are gone; all we can do is cut the stream short
		h.log.Error("streaming read aborted", "error", err)
		return
	}
	io.WriteString(w, "]")
}

// PUT /{owner}/{collection}/{id}
func (h *Handler) storeOne(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "6")
		return
	}
	rec, err := wbo.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "6")
		return
	}
	rec.Collection = chi.URLParam(r, "collection")
	if rec.ID == "" {
		rec.ID = chi.URLParam(r, "id")
	}
	rec.SetModified(wbo.Timestamp(time.Now()))
	if err := rec.Validate(h.maxPayload); err != nil {
		writeError(w, http.StatusBadRequest, "8")
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	if !h.checkPrecondition(w, r, sess, rec.Collection) {
		return
	}

	if rec.HasPayload() {
		err = sess.Store(r.Context(), []*wbo.WBO{rec})
	} else {
		err = sess.Update(r.Context(), rec)
		if errors.Is(err, storage.ErrNothingToUpdate) {
			// nothing to merge is not a client fault; answer with the
			// timestamp the write would have carried
			h.log.Debug("empty update", "collection", rec.Collection, "id", rec.ID)
			err = nil
		}
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeTimestamp(w, *rec.Modified)
}

// POST /{owner}/{collection} applies an array of record fragments under
// one shared timestamp. Fragments fail individually; the batch commits
// regardless so siblings of a bad record still land.
func (h *Handler) batchWrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "6")
		return
	}
	var fragments []json.RawMessage
	if err := json.Unmarshal(body, &fragments); err != nil {
		writeError(w, http.StatusBadRequest, "6")
		return
	}

	collection := chi.URLParam(r, "collection")
	modified := wbo.Timestamp(time.Now())

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	if !h.checkPrecondition(w, r, sess, collection) {
		return
	}

	if err := sess.Begin(r.Context()); err != nil {
		h.fail(w, err)
		return
	}

	result := BatchResult{
		Modified: modified,
		Success:  []string{},
		Failed:   map[string]string{},
	}
	for _, raw := range fragments {
		rec, err := wbo.Parse(raw)
		if err != nil {
			result.Failed[wbo.ExtractID(raw)] = err.Error()
			continue
		}
		rec.Collection = collection
		rec.SetModified(modified)
		if err := rec.Validate(h.maxPayload); err != nil {
			result.Failed[rec.ID] = err.Error()
			continue
		}

		if rec.HasPayload() {
			err = sess.Store(r.Context(), []*wbo.WBO{rec})
		} else {
			err = sess.Update(r.Context(), rec)
			if errors.Is(err, storage.ErrNothingToUpdate) {
				err = nil
			}
		}
		if err != nil {
			result.Failed[rec.ID] = err.Error()
			continue
		}
		result.Success = append(result.Success, rec.ID)
	}

	if err := sess.Commit(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, result)
}

// DELETE /{owner}/{collection}/{id}
func (h *Handler) deleteOne(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	collection := chi.URLParam(r, "collection")
	if !h.checkPrecondition(w, r, sess, collection) {
		return
	}
	if err := sess.DeleteOne(r.Context(), collection, chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	writeTimestamp(w, wbo.Timestamp(time.Now()))
}

// DELETE /{owner}/{collection} with the same filters reads accept.
func (h *Handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "1")
		return
	}

	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	collection := chi.URLParam(r, "collection")
	if !h.checkPrecondition(w, r, sess, collection) {
		return
	}
	if err := sess.DeleteMany(r.Context(), collection, filters); err != nil {
		h.fail(w, err)
		return
	}
	writeTimestamp(w, wbo.Timestamp(time.Now()))
}

// fail is the single place storage errors become protocol responses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	default:
		h.log.Error("storage failure", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Database unavailable")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

// writeTimestamp answers with a bare 2-decimal number, the protocol's
// success body for every write.
func writeTimestamp(w http.ResponseWriter, ts float64) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, strconv.FormatFloat(wbo.Round(ts), 'f', 2, 64))
}

func writeError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%q", body)
}
