package audit

import (
	"context"

	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
)

// Finder is the read side of the audit trail.
type Finder struct {
	store Store
}

// NewFinder constructs a Finder over the given store.
func NewFinder(store Store) *Finder {
	return &Finder{store: store}
}

// FindByEntity returns the audit trail of one entity instance, oldest
// first, optionally narrowed to a single actor.
func (f *Finder) FindByEntity(ctx context.Context, entityType, entityID string, q Query) ([]*Entry, error) {
	if entityType == "" || entityID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entity type and id are required")
	}
	entries, err := f.store.FindByEntity(ctx, entityType, entityID, q.Normalize())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query audit entries by entity")
	}
	return entries, nil
}

// FindByActor returns everything one actor did, oldest first, optionally
// narrowed to a single entity type.
func (f *Finder) FindByActor(ctx context.Context, actorID domain.UserID, q Query) ([]*Entry, error) {
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	entries, err := f.store.FindByActor(ctx, actorID, q.Normalize())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query audit entries by actor")
	}
	return entries, nil
}
