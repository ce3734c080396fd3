// Package uow provides the Unit-of-Work transaction boundary. One logical
// mutation runs exactly one RunInTx call; the entity write and its audit
// write both happen inside fn, and either both commit or neither does.
package uow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "linetrace/pkg/domain-errors"
	txcontext "linetrace/pkg/platform/tx"
)

// Manager opens one atomic transaction per mutating operation. fn receives a
// context carrying the transactional handle; every store call made with that
// context joins the same transaction. An error from fn rolls everything back
// and is propagated to the caller unchanged.
type Manager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

// Postgres implements Manager over database/sql.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
	tracer  trace.Tracer
}

// PostgresOption configures a Postgres manager.
type PostgresOption func(*Postgres)

// WithTimeout bounds transactions that arrive without a deadline.
func WithTimeout(d time.Duration) PostgresOption {
	return func(p *Postgres) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPostgres constructs a Postgres-backed Unit-of-Work manager.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		db:      db,
		timeout: defaultTxTimeout,
		tracer:  otel.Tracer("linetrace/uow"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := txcontext.From(ctx); ok {
		// Nested logical operations join the caller's transaction; there are
		// no independent commit points within one operation.
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ctx, span := p.tracer.Start(ctx, "uow.RunInTx")
	defer span.End()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		span.SetStatus(codes.Error, "begin failed")
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		// Rollback happens in the deferred call; the original error reaches
		// the caller unchanged so the true root cause is visible.
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		return err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
