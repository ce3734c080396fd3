package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"linetrace/internal/platform/metrics"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Relay polls the outbox and publishes pending rows. Publishing is at-least-
// once: a row is only marked published after the broker acknowledges it, so
// a crash between publish and mark can replay but never lose an entry.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batch     int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

// NewRelay constructs a Relay.
func NewRelay(store Store, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		interval:  defaultInterval,
		batch:     defaultBatch,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("linetrace/outbox"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Publish failures are logged and
// retried on the next tick; the relay never drops a row.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of pending rows. Exported so tests and
// shutdown paths can flush deterministically.
func (r *Relay) Drain(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "outbox.Drain")
	defer span.End()

	rows, err := r.store.FetchUnpublished(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if err := r.publisher.Publish(ctx, row.EntityType, row.Payload); err != nil {
			r.metrics.IncOutboxFailure()
			r.logger.WarnContext(ctx, "outbox publish failed",
				"outbox_id", row.ID,
				"entry_id", row.EntryID,
				"error", err,
			)
			break
		}
		r.metrics.IncOutboxPublished()
		published = append(published, row.ID)
	}

	return r.store.MarkPublished(ctx, published)
}
