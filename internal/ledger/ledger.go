// Package ledger remembers which opportunity fingerprints have already been
// published so each one is announced at most once after a successful send.
package ledger

import (
	"context"
	"errors"
	"sort"

	"github.com/david/anansi/internal/models"
)

var (
	// ErrCorrupt is returned alongside an empty Set when persisted state
	// cannot be decoded. Callers may treat it as a warning.
	ErrCorrupt = errors.New("ledger: corrupt state")

	// ErrLocked is returned when another run holds the ledger lock.
	ErrLocked = errors.New("ledger: locked by another run")
)

// Set is a set of fingerprints.
type Set map[string]struct{}

// NewSet builds a Set from ids, ignoring empty strings.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	s.Add(ids...)
	return s
}

func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

// IDs returns the members in sorted order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Store persists a Set between runs.
//
// Load returns an empty Set and a nil error when nothing has been saved yet.
// Undecodable state yields an empty Set together with ErrCorrupt. Save
// replaces the persisted Set and must not leave a partially written state
// behind on failure.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Save(ctx context.Context, seen Set) error
}

// Locker is implemented by stores that can serialize concurrent runs.
// Lock returns ErrLocked when another holder is active.
type Locker interface {
	Lock(ctx context.Context) (release func(context.Context) error, err error)
}

// FilterNew returns the opportunities whose ID is not in seen, preserving order.
func FilterNew(opps []models.Opportunity, seen Set) []models.Opportunity {
	out := make([]models.Opportunity, 0, len(opps))
	for _, o := range opps {
		if !seen.Contains(o.ID) {
			out = append(out, o)
		}
	}
	return out
}

// Commit returns the union of seen and newIDs. seen is not modified.
func Commit(seen Set, newIDs []string) Set {
	out := seen.Clone()
	out.Add(newIDs...)
	return out
}

// Forget removes ids from the persisted Set and reports how many were present.
func Forget(ctx context.Context, store Store, ids ...string) (int, error) {
	seen, err := store.Load(ctx)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if seen.Contains(id) {
			delete(seen, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, store.Save(ctx, seen)
}
