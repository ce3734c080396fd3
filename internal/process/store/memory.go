// Package store persists processes. The in-memory implementation mirrors
// the PostgreSQL constraints: a case-insensitive (line, title) unique pair
// and writes confined to a Unit-of-Work.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"linetrace/internal/process/models"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/sentinel"
	txcontext "linetrace/pkg/platform/tx"
)

// Memory is the in-memory process store.
type Memory struct {
	mu        sync.RWMutex
	processes map[domain.ProcessID]*models.Process
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{processes: make(map[domain.ProcessID]*models.Process)}
}

// Create inserts the process if its title is available on the line.
func (s *Memory) Create(ctx context.Context, process *models.Process) error {
	if !txcontext.InScope(ctx) {
		return dErrors.New(dErrors.CodeInvariantViolation, "process write outside transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lowered := strings.ToLower(process.Title)
	for _, existing := range s.processes {
		if existing.LineID == process.LineID && strings.ToLower(existing.Title) == lowered {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.processes[process.ID] = process.Clone()
	return nil
}

// FindByID returns a clone of the process.
func (s *Memory) FindByID(ctx context.Context, id domain.ProcessID) (*models.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if process, ok := s.processes[id]; ok {
		return process.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByIDForUpdate returns the process for a transactional
// read-modify-write.
func (s *Memory) FindByIDForUpdate(ctx context.Context, id domain.ProcessID) (*models.Process, error) {
	if !txcontext.InScope(ctx) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "locked read outside transaction")
	}
	return s.FindByID(ctx, id)
}

// Update replaces the stored process.
func (s *Memory) Update(ctx context.Context, process *models.Process) error {
	if !txcontext.InScope(ctx) {
		return dErrors.New(dErrors.CodeInvariantViolation, "process write outside transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processes[process.ID]; !ok {
		return sentinel.ErrNotFound
	}
	lowered := strings.ToLower(process.Title)
	for id, existing := range s.processes {
		if id != process.ID && existing.LineID == process.LineID &&
			strings.ToLower(existing.Title) == lowered {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.processes[process.ID] = process.Clone()
	return nil
}

// ListByLine returns the line's processes ordered by creation time.
func (s *Memory) ListByLine(ctx context.Context, lineID domain.LineID, includeInactive bool, limit, offset int) ([]*models.Process, error) {
	s.mu.RLock()
	matched := make([]*models.Process, 0)
	for _, process := range s.processes {
		if process.LineID != lineID {
			continue
		}
		if !includeInactive && !process.IsActive {
			continue
		}
		matched = append(matched, process.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []*models.Process{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// CountUnfinishedByLine counts active non-terminal processes on the line.
// The line service calls this inside its deactivation transaction.
func (s *Memory) CountUnfinishedByLine(ctx context.Context, lineID domain.LineID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, process := range s.processes {
		if process.LineID == lineID && process.IsUnfinished() {
			count++
		}
	}
	return count, nil
}

// Snapshot implements uow.Snapshotter.
func (s *Memory) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[domain.ProcessID]*models.Process, len(s.processes))
	for id, process := range s.processes {
		snapshot[id] = process.Clone()
	}
	return snapshot
}

// Restore implements uow.Snapshotter.
func (s *Memory) Restore(snapshot any) {
	processes, ok := snapshot.(map[domain.ProcessID]*models.Process)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes = processes
}
