package storage

import (
	"fmt"
	"strings"
)

// Sort orders accepted by list and filtered-delete requests.
const (
	SortIndex  = "index"  // sortindex descending
	SortNewest = "newest" // modified descending
	SortOldest = "oldest" // modified ascending
)

// Dialect picks the bind-placeholder style of the backend.
type Dialect int

const (
	DialectSQLite   Dialect = iota // ?
	DialectPostgres                // $1, $2, ...
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Filters is the fixed option set recognized by list and filtered-delete
// requests. Every filter is optional; all are ANDed. Range bounds are
// strict (exclusive) on both ends.
type Filters struct {
	ID            string
	IDs           []string
	ParentID      string
	PredecessorID string
	Newer         *float64
	Older         *float64
	IndexAbove    *int
	IndexBelow    *int
	Sort          string
	Limit         int
	Offset        int
}

// Where renders the conjunctive predicate scoping one owner's collection,
// returning the SQL fragment and its bind args. With no filters set it is
// just the (username, collection) scope. The same predicate drives both
// retrieval and filtered deletes so that a delete removes exactly what a
// list would have returned.
func (f Filters) Where(d Dialect, owner string, collection int) (string, []any) {
	var sb strings.Builder
	args := []any{owner, collection}

	sb.WriteString("username = " + d.placeholder(1))
	sb.WriteString(" AND collection = " + d.placeholder(2))

	and := func(column, op string, v any) {
		args = append(args, v)
		fmt.Fprintf(&sb, " AND %s %s %s", column, op, d.placeholder(len(args)))
	}

	if f.ID != "" {
		and("id", "=", f.ID)
	}
	if len(f.IDs) > 0 {
		marks := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			args = append(args, id)
			marks[i] = d.placeholder(len(args))
		}
		sb.WriteString(" AND id IN (" + strings.Join(marks, ",") + ")")
	}
	if f.ParentID != "" {
		and("parentid", "=", f.ParentID)
	}
	if f.PredecessorID != "" {
		and("predecessorid", "=", f.PredecessorID)
	}
	if f.IndexAbove != nil {
		and("sortindex", ">", *f.IndexAbove)
	}
	if f.IndexBelow != nil {
		and("sortindex", "<", *f.IndexBelow)
	}
	if f.Newer != nil {
		and("modified", ">", *f.Newer)
	}
	if f.Older != nil {
		and("modified", "<", *f.Older)
	}

	return sb.String(), args
}

// Tail renders the ordering and window clauses. Offset only applies in
// combination with a limit; limit and offset are validated integers and are
// rendered inline.
func (f Filters) Tail() string {
	var sb strings.Builder

	switch f.Sort {
	case SortIndex:
		sb.WriteString(" ORDER BY sortindex DESC")
	case SortNewest:
		sb.WriteString(" ORDER BY modified DESC")
	case SortOldest:
		sb.WriteString(" ORDER BY modified")
	}

	if f.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", f.Limit)
		if f.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", f.Offset)
		}
	}
	return sb.String()
}

// Windowed reports whether the filter set needs the select-then-delete
// path: relational engines commonly reject ORDER BY/LIMIT on DELETE, so a
// windowed delete must first materialize its target id set.
func (f Filters) Windowed() bool {
	return f.Sort != "" || f.Limit > 0 || f.Offset > 0
}
