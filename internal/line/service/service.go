// Package service orchestrates production-line mutations. Every write runs
// inside a Unit-of-Work together with its audit entry, so a line change
// without an audit trail cannot be committed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"linetrace/internal/audit"
	"linetrace/internal/invalidation"
	"linetrace/internal/line/models"
	"linetrace/internal/platform/metrics"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/sentinel"
	"linetrace/pkg/requestcontext"
)

// LineStore persists production lines.
type LineStore interface {
	Create(ctx context.Context, line *models.Line) error
	FindByID(ctx context.Context, id domain.LineID) (*models.Line, error)
	FindByIDForUpdate(ctx context.Context, id domain.LineID) (*models.Line, error)
	Update(ctx context.Context, line *models.Line) error
	List(ctx context.Context, includeInactive bool, limit, offset int) ([]*models.Line, error)
}

// ProcessCounter reports child processes that are still in flight. The
// count is taken inside the deactivation transaction so a concurrent
// process insert cannot slip past the guard.
type ProcessCounter interface {
	CountUnfinishedByLine(ctx context.Context, lineID domain.LineID) (int, error)
}

// Auditor records audit entries within the current transaction.
type Auditor interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// TxManager runs a function inside a Unit-of-Work.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service exposes production-line operations.
type Service struct {
	lines     LineStore
	processes ProcessCounter
	manager   TxManager
	auditor   Auditor
	emitter   invalidation.Emitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEmitter(emitter invalidation.Emitter) Option {
	return func(s *Service) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(lines LineStore, processes ProcessCounter, manager TxManager, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		lines:     lines,
		processes: processes,
		manager:   manager,
		auditor:   auditor,
		emitter:   invalidation.Noop{},
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the fields for a new production line.
type CreateInput struct {
	Name        string
	Description string
	Reason      string
}

// Create registers a new production line. The insert and its audit entry
// commit atomically; a concurrent insert of the same name loses at commit
// time and is reported as a conflict.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Line, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	line, err := models.New(domain.NewLineID(), input.Name, input.Description, actor.ID, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	err = s.manager.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.lines.Create(ctx, line); err != nil {
			return s.classifyWrite(err, "production line name already in use")
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionCreate,
			EntityType: models.EntityType,
			EntityID:   line.AuditEntityID(),
			Reason:     input.Reason,
			Details: audit.Details{
				"name":        line.Name,
				"description": line.Description,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, line, "create")
	return line, nil
}

// UpdateInput carries a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Name        *string
	Description *string
	Reason      string
}

// Update modifies name or description. An update that changes nothing is
// rejected so the audit trail never records a no-op.
func (s *Service) Update(ctx context.Context, id domain.LineID, input UpdateInput) (*models.Line, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var updated *models.Line
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		line, err := s.lines.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err, "production line not found")
		}

		previous := audit.Details{}
		changes := audit.Details{}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name != line.Name {
				previous["name"] = line.Name
				changes["name"] = name
				line.Name = name
			}
		}
		if input.Description != nil {
			if *input.Description != line.Description {
				previous["description"] = line.Description
				changes["description"] = *input.Description
				line.Description = *input.Description
			}
		}
		if len(changes) == 0 {
			return dErrors.New(dErrors.CodeValidation, "update contains no changes")
		}
		if err := line.Validate(); err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}

		line.Touch(requestcontext.Now(ctx))
		if err := s.lines.Update(ctx, line); err != nil {
			return s.classifyWrite(err, "production line name already in use")
		}

		updated = line
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			EntityType: models.EntityType,
			EntityID:   line.AuditEntityID(),
			Reason:     input.Reason,
			Details:    audit.Details{"changes": changes, "previousValues": previous},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated, "update")
	return updated, nil
}

// Deactivate soft-deletes a line. It is refused while unfinished child
// processes exist; the count runs in the same transaction as the write.
func (s *Service) Deactivate(ctx context.Context, id domain.LineID, reason string) (*models.Line, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var updated *models.Line
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		line, err := s.lines.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err, "production line not found")
		}
		if err := line.CanDeactivate(); err != nil {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}

		unfinished, err := s.processes.CountUnfinishedByLine(ctx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "count unfinished processes")
		}
		if unfinished > 0 {
			return dErrors.Newf(dErrors.CodeConflict,
				"production line has %d unfinished processes", unfinished)
		}

		line.ApplyDeactivation(requestcontext.Now(ctx))
		if err := s.lines.Update(ctx, line); err != nil {
			return s.classifyWrite(err, "production line name already in use")
		}

		updated = line
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionDelete,
			EntityType: models.EntityType,
			EntityID:   line.AuditEntityID(),
			Reason:     reason,
			Details:    audit.Details{"name": line.Name},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated, "deactivate")
	return updated, nil
}

// Reactivate restores a previously deactivated line.
func (s *Service) Reactivate(ctx context.Context, id domain.LineID, reason string) (*models.Line, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var updated *models.Line
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		line, err := s.lines.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err, "production line not found")
		}
		if err := line.CanReactivate(); err != nil {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}

		line.ApplyReactivation(requestcontext.Now(ctx))
		if err := s.lines.Update(ctx, line); err != nil {
			return s.classifyWrite(err, "production line name already in use")
		}

		updated = line
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			EntityType: models.EntityType,
			EntityID:   line.AuditEntityID(),
			Reason:     reason,
			Details:    audit.Details{"previousValues": audit.Details{"isActive": false}},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated, "reactivate")
	return updated, nil
}

// Get loads a single line.
func (s *Service) Get(ctx context.Context, id domain.LineID) (*models.Line, error) {
	line, err := s.lines.FindByID(ctx, id)
	if err != nil {
		return nil, classifyRead(err, "production line not found")
	}
	return line, nil
}

// ListQuery filters and paginates line listings.
type ListQuery struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}

// List returns lines ordered by name. Limit defaults to 50 and is capped
// at 500.
func (s *Service) List(ctx context.Context, query ListQuery) ([]*models.Line, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 500 {
		query.Limit = 500
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	lines, err := s.lines.List(ctx, query.IncludeInactive, query.Limit, query.Offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list production lines")
	}
	return lines, nil
}

// afterCommit publishes cache invalidation and counts the mutation. Runs
// only after the transaction has committed.
func (s *Service) afterCommit(ctx context.Context, line *models.Line, operation string) {
	s.emitter.Invalidate(ctx, invalidation.Tags(models.EntityType, line.AuditEntityID())...)
	s.metrics.IncMutation(models.EntityType, operation)
	s.logger.InfoContext(ctx, "production line mutated",
		"operation", operation, "line_id", line.ID.String())
}

func (s *Service) classifyWrite(err error, conflictMsg string) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		s.metrics.IncConflict(models.EntityType)
		return dErrors.New(dErrors.CodeConflict, conflictMsg)
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "write production line")
}

func classifyRead(err error, notFoundMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "load production line")
}
