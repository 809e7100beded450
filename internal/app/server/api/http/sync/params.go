package sync

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"weavesync/internal/storage"
)

// parseFilters maps the wire query parameters onto storage filters. The
// same set serves reads and filtered deletes.
func parseFilters(q url.Values) (storage.Filters, error) {
	var f storage.Filters

	f.ID = q.Get("id")
	if raw := q.Get("ids"); raw != "" {
		f.IDs = strings.Split(raw, ",")
	}
	f.ParentID = q.Get("parentid")
	f.PredecessorID = q.Get("predecessorid")

	var err error
	if f.Newer, err = optFloat(q, "newer"); err != nil {
		return f, err
	}
	if f.Older, err = optFloat(q, "older"); err != nil {
		return f, err
	}
	if f.IndexAbove, err = optInt(q, "index_above"); err != nil {
		return f, err
	}
	if f.IndexBelow, err = optInt(q, "index_below"); err != nil {
		return f, err
	}

	switch sort := q.Get("sort"); sort {
	case "", storage.SortIndex, storage.SortNewest, storage.SortOldest:
		f.Sort = sort
	default:
		return f, fmt.Errorf("unknown sort %q", sort)
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, fmt.Errorf("bad limit %q", raw)
		}
		f.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, fmt.Errorf("bad offset %q", raw)
		}
		f.Offset = n
	}
	return f, nil
}

func optFloat(q url.Values, key string) (*float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("bad %s %q", key, raw)
	}
	return &v, nil
}

func optInt(q url.Values, key string) (*int, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("bad %s %q", key, raw)
	}
	return &v, nil
}
