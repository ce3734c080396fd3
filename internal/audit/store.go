package audit

import (
	"context"

	"linetrace/pkg/domain"
)

// Store is the append-only persistence contract for audit entries. Append
// must be called inside an active Unit-of-Work transaction; implementations
// reject appends outside one. No update or delete is exposed.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	FindByEntity(ctx context.Context, entityType, entityID string, q Query) ([]*Entry, error)
	FindByActor(ctx context.Context, actorID domain.UserID, q Query) ([]*Entry, error)
}
