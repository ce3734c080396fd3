package audit

import (
	"context"
	"log/slog"

	"linetrace/internal/platform/metrics"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/requestcontext"
)

// Recorder validates and persists audit entries. It is the single write
// path for compliance records: services build an Entry explicitly, the
// interceptor derives one, and both go through Record inside the enclosing
// Unit-of-Work transaction.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

func WithRecorderMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record fills derived fields, validates the entry, sanitizes its details,
// and appends it. A store failure is classified CodeAuditWrite with the
// original cause preserved; the enclosing transaction must roll back.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.ID.IsNil() {
		entry.ID = domain.NewEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.IPAddress == "" {
		entry.IPAddress = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	entry.Details = Sanitize(entry.Details)

	if err := r.validate(entry); err != nil {
		return err
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.metrics.IncAuditWriteFailure()
		r.logger.ErrorContext(ctx, "audit write failed",
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"action", entry.Action,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeAuditWrite, "audit write failed")
	}

	r.metrics.IncAuditAppend()
	return nil
}

func (r *Recorder) validate(entry *Entry) error {
	if entry.ActorID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires an actor")
	}
	if !entry.Action.IsValid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown audit action %q", entry.Action)
	}
	if entry.EntityType == "" || entry.EntityID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires an entity reference")
	}
	if entry.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}
