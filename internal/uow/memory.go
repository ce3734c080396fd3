package uow

import (
	"context"
	"sync"

	dErrors "linetrace/pkg/domain-errors"
	txcontext "linetrace/pkg/platform/tx"
)

// Snapshotter is implemented by in-memory stores that participate in an
// in-memory Unit-of-Work. Snapshot returns an opaque deep copy of the
// store's state; Restore reinstates it on rollback.
type Snapshotter interface {
	Snapshot() any
	Restore(snapshot any)
}

// Memory implements Manager for in-memory stores. A coarse lock serializes
// transactions; rollback restores pre-transaction snapshots of every
// registered store, so atomicity properties hold the same way they do
// against SQL storage.
type Memory struct {
	mu     sync.Mutex
	stores []Snapshotter
}

// NewMemory constructs an in-memory manager over the given stores.
func NewMemory(stores ...Snapshotter) *Memory {
	return &Memory{stores: stores}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if txcontext.InScope(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshots := make([]any, len(m.stores))
	for i, store := range m.stores {
		snapshots[i] = store.Snapshot()
	}

	if err := fn(txcontext.WithScope(ctx)); err != nil {
		for i, store := range m.stores {
			store.Restore(snapshots[i])
		}
		return err
	}
	return nil
}
