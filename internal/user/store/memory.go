// Package store persists users. The in-memory implementation mirrors the
// PostgreSQL constraints: a case-insensitive unique email and writes
// confined to a Unit-of-Work.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"linetrace/internal/user/models"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/sentinel"
	txcontext "linetrace/pkg/platform/tx"
)

// Memory is the in-memory user store.
type Memory struct {
	mu    sync.RWMutex
	users map[domain.UserID]*models.User
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[domain.UserID]*models.User)}
}

// Create inserts the user if the email is available.
func (s *Memory) Create(ctx context.Context, user *models.User) error {
	if !txcontext.InScope(ctx) {
		return dErrors.New(dErrors.CodeInvariantViolation, "user write outside transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lowered := strings.ToLower(user.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == lowered {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.users[user.ID] = user.Clone()
	return nil
}

// FindByID returns a clone of the user.
func (s *Memory) FindByID(ctx context.Context, id domain.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[id]; ok {
		return user.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByEmail returns the user owning the email, case-insensitive.
func (s *Memory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lowered := strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if strings.ToLower(user.Email) == lowered {
			return user.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindByIDForUpdate returns the user for a transactional
// read-modify-write.
func (s *Memory) FindByIDForUpdate(ctx context.Context, id domain.UserID) (*models.User, error) {
	if !txcontext.InScope(ctx) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "locked read outside transaction")
	}
	return s.FindByID(ctx, id)
}

// Update replaces the stored user.
func (s *Memory) Update(ctx context.Context, user *models.User) error {
	if !txcontext.InScope(ctx) {
		return dErrors.New(dErrors.CodeInvariantViolation, "user write outside transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	lowered := strings.ToLower(user.Email)
	for id, existing := range s.users {
		if id != user.ID && strings.ToLower(existing.Email) == lowered {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.users[user.ID] = user.Clone()
	return nil
}

// List returns users ordered by email.
func (s *Memory) List(ctx context.Context, includeInactive bool, limit, offset int) ([]*models.User, error) {
	s.mu.RLock()
	matched := make([]*models.User, 0, len(s.users))
	for _, user := range s.users {
		if !includeInactive && !user.IsActive {
			continue
		}
		matched = append(matched, user.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })

	if offset >= len(matched) {
		return []*models.User{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of stored users; test helper.
func (s *Memory) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// Snapshot implements uow.Snapshotter.
func (s *Memory) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[domain.UserID]*models.User, len(s.users))
	for id, user := range s.users {
		snapshot[id] = user.Clone()
	}
	return snapshot
}

// Restore implements uow.Snapshotter.
func (s *Memory) Restore(snapshot any) {
	users, ok := snapshot.(map[domain.UserID]*models.User)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
}
