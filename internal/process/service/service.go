// Package service orchestrates process mutations. As with production
// lines, every write commits in one Unit-of-Work with its audit entry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"linetrace/internal/audit"
	"linetrace/internal/invalidation"
	linemodels "linetrace/internal/line/models"
	"linetrace/internal/platform/metrics"
	"linetrace/internal/process/models"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/sentinel"
	"linetrace/pkg/requestcontext"
)

// ProcessStore persists processes.
type ProcessStore interface {
	Create(ctx context.Context, process *models.Process) error
	FindByID(ctx context.Context, id domain.ProcessID) (*models.Process, error)
	FindByIDForUpdate(ctx context.Context, id domain.ProcessID) (*models.Process, error)
	Update(ctx context.Context, process *models.Process) error
	ListByLine(ctx context.Context, lineID domain.LineID, includeInactive bool, limit, offset int) ([]*models.Process, error)
}

// LineReader revalidates the parent line inside the creation transaction.
// A line deactivated between the caller's check and the commit is caught
// here, not trusted from stale input.
type LineReader interface {
	FindByID(ctx context.Context, id domain.LineID) (*linemodels.Line, error)
}

// Auditor records audit entries within the current transaction.
type Auditor interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// TxManager runs a function inside a Unit-of-Work.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service exposes process operations.
type Service struct {
	processes ProcessStore
	lines     LineReader
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
func New(processes ProcessStore, lines LineReader, manager TxManager, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		processes: processes,
		lines:     lines,
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

// CreateInput carries the fields for a new process.
type CreateInput struct {
	LineID      domain.LineID
	Title       string
	Description string
	Reason      string
}

// Create registers a new process on a line. The parent line is re-read
// inside the transaction: a missing line is NotFound, an inactive one a
// conflict.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Process, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	process, err := models.New(domain.NewProcessID(), input.LineID, input.Title,
		input.Description, actor.ID, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	err = s.manager.RunInTx(ctx, func(ctx context.Context) error {
		line, err := s.lines.FindByID(ctx, input.LineID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "production line not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load production line")
		}
		if !line.IsActive {
			return dErrors.New(dErrors.CodeConflict, "production line is inactive")
		}

		if err := s.processes.Create(ctx, process); err != nil {
			return s.classifyWrite(err)
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionCreate,
			EntityType: models.EntityType,
			EntityID:   process.AuditEntityID(),
			Reason:     input.Reason,
			Details: audit.Details{
				"lineId": line.AuditEntityID(),
				"title":  process.Title,
				"status": string(process.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, process, "create")
	return process, nil
}

// UpdateInput carries a partial update. Nil fields are left untouched; a
// Status change must follow the status machine.
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *models.Status
	Reason      string
}

// Update modifies a process. An update that changes nothing is rejected.
func (s *Service) Update(ctx context.Context, id domain.ProcessID, input UpdateInput) (*models.Process, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var updated *models.Process
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		process, err := s.processes.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err)
		}
		if err := process.CanMutate(); err != nil {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}

		now := requestcontext.Now(ctx)
		previous := audit.Details{}
		changes := audit.Details{}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title != process.Title {
				previous["title"] = process.Title
				changes["title"] = title
				process.Title = title
			}
		}
		if input.Description != nil {
			if *input.Description != process.Description {
				previous["description"] = process.Description
				changes["description"] = *input.Description
				process.Description = *input.Description
			}
		}
		if input.Status != nil && *input.Status != process.Status {
			previous["status"] = string(process.Status)
			changes["status"] = string(*input.Status)
			if err := process.ApplyTransition(*input.Status, now); err != nil {
				return dErrors.New(dErrors.CodeConflict, err.Error())
			}
		} else if len(changes) > 0 {
			process.Touch(now)
		}
		if len(changes) == 0 {
			return dErrors.New(dErrors.CodeValidation, "update contains no changes")
		}
		if err := process.Validate(); err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}

		if err := s.processes.Update(ctx, process); err != nil {
			return s.classifyWrite(err)
		}

		updated = process
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			EntityType: models.EntityType,
			EntityID:   process.AuditEntityID(),
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

// Approve moves a pending process into progress. Supervisors and admins
// only; the audit entry carries the APPROVE action.
func (s *Service) Approve(ctx context.Context, id domain.ProcessID, reason string) (*models.Process, error) {
	return s.review(ctx, id, reason, audit.ActionApprove, models.StatusInProgress)
}

// Reject cancels a pending process. Supervisors and admins only; the
// audit entry carries the REJECT action.
func (s *Service) Reject(ctx context.Context, id domain.ProcessID, reason string) (*models.Process, error) {
	return s.review(ctx, id, reason, audit.ActionReject, models.StatusCancelled)
}

func (s *Service) review(ctx context.Context, id domain.ProcessID, reason string, action audit.Action, next models.Status) (*models.Process, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if !actor.Role.AtLeast(domain.RoleSupervisor) {
		return nil, dErrors.New(dErrors.CodeForbidden, "review requires supervisor role")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var updated *models.Process
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		process, err := s.processes.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err)
		}
		if process.Status != models.StatusPending {
			return dErrors.Newf(dErrors.CodeConflict, "process is %s, not pending review", process.Status)
		}
		if err := process.ApplyTransition(next, requestcontext.Now(ctx)); err != nil {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}
		if err := s.processes.Update(ctx, process); err != nil {
			return s.classifyWrite(err)
		}

		updated = process
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     action,
			EntityType: models.EntityType,
			EntityID:   process.AuditEntityID(),
			Reason:     reason,
			Details:    audit.Details{"status": string(process.Status)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated, strings.ToLower(string(action)))
	return updated, nil
}

// Deactivate soft-deletes a process.
func (s *Service) Deactivate(ctx context.Context, id domain.ProcessID, reason string) (*models.Process, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var updated *models.Process
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		process, err := s.processes.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err)
		}
		if err := process.CanDeactivate(); err != nil {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}

		process.ApplyDeactivation(requestcontext.Now(ctx))
		if err := s.processes.Update(ctx, process); err != nil {
			return s.classifyWrite(err)
		}

		updated = process
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionDelete,
			EntityType: models.EntityType,
			EntityID:   process.AuditEntityID(),
			Reason:     reason,
			Details:    audit.Details{"title": process.Title},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated, "deactivate")
	return updated, nil
}

// Get loads a single process.
func (s *Service) Get(ctx context.Context, id domain.ProcessID) (*models.Process, error) {
	process, err := s.processes.FindByID(ctx, id)
	if err != nil {
		return nil, classifyRead(err)
	}
	return process, nil
}

// ListQuery filters and paginates process listings.
type ListQuery struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}

// ListByLine returns the line's processes ordered by creation time.
func (s *Service) ListByLine(ctx context.Context, lineID domain.LineID, query ListQuery) ([]*models.Process, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 500 {
		query.Limit = 500
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	processes, err := s.processes.ListByLine(ctx, lineID, query.IncludeInactive, query.Limit, query.Offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list processes")
	}
	return processes, nil
}

func (s *Service) afterCommit(ctx context.Context, process *models.Process, operation string) {
	s.emitter.Invalidate(ctx, invalidation.Tags(models.EntityType, process.AuditEntityID())...)
	s.metrics.IncMutation(models.EntityType, operation)
	s.logger.InfoContext(ctx, "process mutated",
		"operation", operation,
		"process_id", process.ID.String(),
		"line_id", process.LineID.String(),
		"status", string(process.Status))
}

func (s *Service) classifyWrite(err error) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		s.metrics.IncConflict(models.EntityType)
		return dErrors.New(dErrors.CodeConflict, "process title already in use on this line")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "write process")
}

func classifyRead(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "process not found")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "load process")
}
