// Package tx carries the per-operation transaction handle in context so
// stores can join the enclosing Unit-of-Work without widening their APIs.
package tx

import (
	"context"
	"database/sql"
)

type (
	txKey    struct{}
	scopeKey struct{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, txKey{}, tx)
	return context.WithValue(ctx, scopeKey{}, true)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	t, ok := ctx.Value(txKey{}).(*sql.Tx)
	return t, ok
}

// WithScope marks the context as being inside a Unit-of-Work without binding
// a SQL transaction. The in-memory manager uses this so stores can enforce
// the same "writes only inside a transaction" rule as the SQL path.
func WithScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, true)
}

// InScope reports whether the context is inside a Unit-of-Work, SQL backed
// or in-memory.
func InScope(ctx context.Context) bool {
	active, _ := ctx.Value(scopeKey{}).(bool)
	return active
}
