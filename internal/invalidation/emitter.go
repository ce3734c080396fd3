// Package invalidation notifies downstream caches that a tagged entity
// changed. Services emit after commit only; emission is best effort and
// never fails the mutation that triggered it.
package invalidation

import (
	"context"
	"sync"
)

// Event tags one invalidated cache entry. EntityTag is either the entity
// type itself (type-level invalidation) or "<type>:<id>" for one instance.
type Event struct {
	EntityType string `json:"entityType"`
	EntityTag  string `json:"entityTag"`
}

// Tags builds the standard pair of events for one mutated entity: the
// type-level tag plus the instance tag.
func Tags(entityType, entityID string) []Event {
	return []Event{
		{EntityType: entityType, EntityTag: entityType},
		{EntityType: entityType, EntityTag: entityType + ":" + entityID},
	}
}

// Emitter publishes invalidation events to the external cache layer.
type Emitter interface {
	Invalidate(ctx context.Context, events ...Event)
}

// Noop discards events; the default when no cache layer is configured.
type Noop struct{}

func (Noop) Invalidate(context.Context, ...Event) {}

// Registry fans events out to in-process subscribers. It backs embedded
// deployments and tests.
type Registry struct {
	mu          sync.RWMutex
	subscribers []func(Event)
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe registers a callback invoked synchronously for every event.
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Registry) Invalidate(_ context.Context, events ...Event) {
	r.mu.RLock()
	subscribers := make([]func(Event), len(r.subscribers))
	copy(subscribers, r.subscribers)
	r.mu.RUnlock()

	for _, event := range events {
		for _, fn := range subscribers {
			fn(event)
		}
	}
}

// Multi forwards every event to each wrapped emitter.
type Multi []Emitter

func (m Multi) Invalidate(ctx context.Context, events ...Event) {
	for _, emitter := range m {
		emitter.Invalidate(ctx, events...)
	}
}
