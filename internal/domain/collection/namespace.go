package collection

import (
	"context"
	"errors"
	"fmt"
)

// Well-known collections share fixed low ids across all owners and never
// touch the mapping table. Dynamic ids start above FirstDynamicID.
var wellKnownIDs = map[string]int{
	"clients":   1,
	"crypto":    2,
	"forms":     3,
	"history":   4,
	"keys":      5,
	"meta":      6,
	"bookmarks": 7,
	"prefs":     8,
	"tabs":      9,
	"passwords": 10,
}

var wellKnownNames = func() map[int]string {
	m := make(map[int]string, len(wellKnownIDs))
	for name, id := range wellKnownIDs {
		m[id] = name
	}
	return m
}()

// FirstDynamicID is the floor for dynamically allocated collection ids;
// the first unrecognized name an owner writes gets 101.
const FirstDynamicID = 100

var (
	// ErrNoMapping is returned by Mapper lookups when the owner has no
	// entry for the name or id.
	ErrNoMapping = errors.New("no collection mapping")

	// ErrConflict is returned by Mapper.Allocate when the insert lost an
	// allocation race (unique constraint violation).
	ErrConflict = errors.New("collection allocation conflict")
)

// Mapper is the persistent side of the namespace: the per-owner mapping
// table. Allocate must be serialized by the backend's own atomicity
// primitive (a unique constraint), never an in-process lock, because
// writers may live in different processes.
type Mapper interface {
	LookupID(ctx context.Context, owner, name string) (int, error)
	LookupName(ctx context.Context, owner string, id int) (string, error)
	Allocate(ctx context.Context, owner, name string) (int, error)
	LoadAll(ctx context.Context, owner string) (map[int]string, error)
}

// Namespace maps collection names to compact per-owner ids with an explicit
// fill-on-miss cache. One Namespace belongs to one storage session and is
// not safe for concurrent use.
type Namespace struct {
	owner  string
	mapper Mapper

	byName map[string]int
	byID   map[int]string
	loaded bool
}

func NewNamespace(owner string, mapper Mapper) *Namespace {
	return &Namespace{
		owner:  owner,
		mapper: mapper,
		byName: make(map[string]int),
		byID:   make(map[int]string),
	}
}

const allocateRetries = 3

// Resolve returns the collection id for a name, lazily allocating
// max(existing, 100)+1 for a name this owner has never used. Two concurrent
// first-writers racing on the same name converge on a single id: the loser
// of the unique-constraint race re-reads the winner's row.
func (n *Namespace) Resolve(ctx context.Context, name string) (int, error) {
	if id, ok := wellKnownIDs[name]; ok {
		return id, nil
	}
	if id, ok := n.byName[name]; ok {
		return id, nil
	}

	for attempt := 0; ; attempt++ {
		id, err := n.mapper.LookupID(ctx, n.owner, name)
		if err == nil {
			n.remember(name, id)
			return id, nil
		}
		if !errors.Is(err, ErrNoMapping) {
			return 0, err
		}

		id, err = n.mapper.Allocate(ctx, n.owner, name)
		if err == nil {
			n.remember(name, id)
			return id, nil
		}
		if !errors.Is(err, ErrConflict) {
			return 0, err
		}
		if attempt >= allocateRetries {
			return 0, fmt.Errorf("allocate collection %q: %w", name, err)
		}
	}
}

// NameOf resolves an id back to its name, or ErrNoMapping for an id that
// belongs to no known collection of this owner.
func (n *Namespace) NameOf(ctx context.Context, id int) (string, error) {
	if name, ok := wellKnownNames[id]; ok {
		return name, nil
	}
	if name, ok := n.byID[id]; ok {
		return name, nil
	}
	name, err := n.mapper.LookupName(ctx, n.owner, id)
	if err != nil {
		return "", err
	}
	n.remember(name, id)
	return name, nil
}

// ReconcileName is NameOf for bulk listings: the first unknown id triggers
// one load of the owner's whole mapping table; ids still unknown after that
// are reported as orphaned via ErrNoMapping without further lookups.
func (n *Namespace) ReconcileName(ctx context.Context, id int) (string, error) {
	if name, ok := wellKnownNames[id]; ok {
		return name, nil
	}
	if name, ok := n.byID[id]; ok {
		return name, nil
	}
	if n.loaded {
		return "", ErrNoMapping
	}
	all, err := n.mapper.LoadAll(ctx, n.owner)
	if err != nil {
		return "", err
	}
	for mid, mname := range all {
		n.remember(mname, mid)
	}
	n.loaded = true
	if name, ok := n.byID[id]; ok {
		return name, nil
	}
	return "", ErrNoMapping
}

func (n *Namespace) remember(name string, id int) {
	n.byName[name] = id
	n.byID[id] = name
}
