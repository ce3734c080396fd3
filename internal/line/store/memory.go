// Package store persists production lines. The in-memory implementation
// backs unit tests and mirrors the PostgreSQL constraints: a case-
// insensitive unique name and writes confined to a Unit-of-Work.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"linetrace/internal/line/models"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/sentinel"
	txcontext "linetrace/pkg/platform/tx"
)

// Memory is the in-memory line store.
type Memory struct {
	mu    sync.RWMutex
	lines map[domain.LineID]*models.Line
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{lines: make(map[domain.LineID]*models.Line)}
}

// Create inserts the line if its name is available (case-insensitive).
func (s *Memory) Create(ctx context.Context, line *models.Line) error {
	if !txcontext.InScope(ctx) {
		return dErrors.New(dErrors.CodeInvariantViolation, "line write outside transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lowered := strings.ToLower(line.Name)
	for _, existing := range s.lines {
		if strings.ToLower(existing.Name) == lowered {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.lines[line.ID] = line.Clone()
	return nil
}

// FindByID returns a clone of the line.
func (s *Memory) FindByID(ctx context.Context, id domain.LineID) (*models.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if line, ok := s.lines[id]; ok {
		return line.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByIDForUpdate returns the line for a read-modify-write inside a
// transaction. The in-memory Unit-of-Work already serializes writers, so
// this is FindByID plus the transaction-scope check.
func (s *Memory) FindByIDForUpdate(ctx context.Context, id domain.LineID) (*models.Line, error) {
	if !txcontext.InScope(ctx) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "locked read outside transaction")
	}
	return s.FindByID(ctx, id)
}

// Update replaces the stored line.
func (s *Memory) Update(ctx context.Context, line *models.Line) error {
	if !txcontext.InScope(ctx) {
		return dErrors.New(dErrors.CodeInvariantViolation, "line write outside transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[line.ID]; !ok {
		return sentinel.ErrNotFound
	}
	lowered := strings.ToLower(line.Name)
	for id, existing := range s.lines {
		if id != line.ID && strings.ToLower(existing.Name) == lowered {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.lines[line.ID] = line.Clone()
	return nil
}

// List returns lines ordered by name. Inactive lines are included only on
// request.
func (s *Memory) List(ctx context.Context, includeInactive bool, limit, offset int) ([]*models.Line, error) {
	s.mu.RLock()
	matched := make([]*models.Line, 0, len(s.lines))
	for _, line := range s.lines {
		if !includeInactive && !line.IsActive {
			continue
		}
		matched = append(matched, line.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	if offset >= len(matched) {
		return []*models.Line{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of stored lines; test helper.
func (s *Memory) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines), nil
}

// Snapshot implements uow.Snapshotter.
func (s *Memory) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[domain.LineID]*models.Line, len(s.lines))
	for id, line := range s.lines {
		snapshot[id] = line.Clone()
	}
	return snapshot
}

// Restore implements uow.Snapshotter.
func (s *Memory) Restore(snapshot any) {
	lines, ok := snapshot.(map[domain.LineID]*models.Line)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = lines
}
