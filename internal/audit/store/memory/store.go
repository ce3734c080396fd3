// Package memory provides the in-memory audit store used by unit tests and
// single-process deployments. It enforces the same write discipline as the
// SQL store: appends are rejected outside a Unit-of-Work.
package memory

import (
	"context"
	"sort"
	"sync"

	"linetrace/internal/audit"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	txcontext "linetrace/pkg/platform/tx"
)

// Store keeps entries in insertion order. Entries are never mutated after
// Append, so snapshots can share them.
type Store struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

// New constructs an empty in-memory audit store.
func New() *Store {
	return &Store{}
}

// Append records an entry. Appending outside an active Unit-of-Work is a
// programming error and is rejected.
func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	if !txcontext.InScope(ctx) {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit append outside transaction")
	}
	copied := *entry
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &copied)
	return nil
}

// FindByEntity returns entries for one entity instance, CreatedAt
// ascending.
func (s *Store) FindByEntity(ctx context.Context, entityType, entityID string, q audit.Query) ([]*audit.Entry, error) {
	return s.filter(func(e *audit.Entry) bool {
		if e.EntityType != entityType || e.EntityID != entityID {
			return false
		}
		if !q.ActorID.IsNil() && e.ActorID != q.ActorID {
			return false
		}
		return true
	}, q), nil
}

// FindByActor returns entries for one actor, CreatedAt ascending.
func (s *Store) FindByActor(ctx context.Context, actorID domain.UserID, q audit.Query) ([]*audit.Entry, error) {
	return s.filter(func(e *audit.Entry) bool {
		if e.ActorID != actorID {
			return false
		}
		if q.EntityType != "" && e.EntityType != q.EntityType {
			return false
		}
		return true
	}, q), nil
}

func (s *Store) filter(match func(*audit.Entry) bool, q audit.Query) []*audit.Entry {
	s.mu.RLock()
	matched := make([]*audit.Entry, 0)
	for _, e := range s.entries {
		if match(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if q.Offset >= len(matched) {
		return []*audit.Entry{}
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*audit.Entry, len(matched))
	for i, e := range matched {
		copied := *e
		out[i] = &copied
	}
	return out
}

// Count returns the total number of entries; test helper.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot implements uow.Snapshotter.
func (s *Store) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]*audit.Entry, len(s.entries))
	copy(snapshot, s.entries)
	return snapshot
}

// Restore implements uow.Snapshotter.
func (s *Store) Restore(snapshot any) {
	entries, ok := snapshot.([]*audit.Entry)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}
