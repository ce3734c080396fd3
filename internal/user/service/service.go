// Package service orchestrates user mutations. Passwords are hashed with
// bcrypt before they reach any store, and audit details never carry the
// plaintext: the recorder redacts sensitive keys as a second line of
// defense.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"linetrace/internal/audit"
	"linetrace/internal/invalidation"
	"linetrace/internal/platform/metrics"
	"linetrace/internal/user/models"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/platform/sentinel"
	"linetrace/pkg/requestcontext"
)

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id domain.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDForUpdate(ctx context.Context, id domain.UserID) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context, includeInactive bool, limit, offset int) ([]*models.User, error)
}

// Auditor records audit entries within the current transaction.
type Auditor interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// TxManager runs a function inside a Unit-of-Work.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service exposes user operations.
type Service struct {
	users      UserStore
	manager    TxManager
	auditor    Auditor
	emitter    invalidation.Emitter
	logger     *slog.Logger
	metrics    *metrics.Metrics
	bcryptCost int
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

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// New constructs a Service.
func New(users UserStore, manager TxManager, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		users:      users,
		manager:    manager,
		auditor:    auditor,
		emitter:    invalidation.Noop{},
		logger:     slog.New(slog.DiscardHandler),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the fields for a new user account.
type CreateInput struct {
	Email     string
	FirstName string
	LastName  string
	Role      domain.Role
	Password  string
	Reason    string
}

// Create registers a user. Creating an admin requires an admin actor.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.User, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(input.Password) < 12 {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 12 characters")
	}
	if input.Role == domain.RoleAdmin && !actor.Role.AtLeast(domain.RoleAdmin) {
		return nil, dErrors.New(dErrors.CodeForbidden, "creating an admin requires admin role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	user, err := models.New(domain.NewUserID(), input.Email, input.FirstName,
		input.LastName, input.Role, string(hash), requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	err = s.manager.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return s.classifyWrite(err)
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionCreate,
			EntityType: models.EntityType,
			EntityID:   user.AuditEntityID(),
			Reason:     input.Reason,
			Details: audit.Details{
				"email":    user.Email,
				"role":     user.Role.String(),
				"password": input.Password,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, user, "create")
	return user, nil
}

// UpdateInput carries a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *domain.Role
	Reason    string
}

// Update modifies a user. A role change requires an admin actor.
func (s *Service) Update(ctx context.Context, id domain.UserID, input UpdateInput) (*models.User, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var updated *models.User
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err)
		}
		if !user.IsActive {
			return dErrors.New(dErrors.CodeConflict, "user is inactive")
		}

		previous := audit.Details{}
		changes := audit.Details{}
		if input.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*input.Email))
			if email != user.Email {
				previous["email"] = user.Email
				changes["email"] = email
				user.Email = email
			}
		}
		if input.FirstName != nil {
			name := strings.TrimSpace(*input.FirstName)
			if name != user.FirstName {
				previous["firstName"] = user.FirstName
				changes["firstName"] = name
				user.FirstName = name
			}
		}
		if input.LastName != nil {
			name := strings.TrimSpace(*input.LastName)
			if name != user.LastName {
				previous["lastName"] = user.LastName
				changes["lastName"] = name
				user.LastName = name
			}
		}
		if input.Role != nil && *input.Role != user.Role {
			if !actor.Role.AtLeast(domain.RoleAdmin) {
				return dErrors.New(dErrors.CodeForbidden, "changing a role requires admin role")
			}
			previous["role"] = user.Role.String()
			changes["role"] = input.Role.String()
			user.Role = *input.Role
		}
		if len(changes) == 0 {
			return dErrors.New(dErrors.CodeValidation, "update contains no changes")
		}
		if err := user.Validate(); err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}

		user.Touch(requestcontext.Now(ctx))
		if err := s.users.Update(ctx, user); err != nil {
			return s.classifyWrite(err)
		}

		updated = user
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			EntityType: models.EntityType,
			EntityID:   user.AuditEntityID(),
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

// Deactivate soft-deletes a user and anonymizes PII in the same
// transaction. The original values survive only inside the audit entry.
func (s *Service) Deactivate(ctx context.Context, id domain.UserID, reason string) (*models.User, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if actor.ID == id {
		return nil, dErrors.New(dErrors.CodeConflict, "users cannot deactivate themselves")
	}

	var updated *models.User
	err := s.manager.RunInTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByIDForUpdate(ctx, id)
		if err != nil {
			return classifyRead(err)
		}
		if err := user.CanDeactivate(); err != nil {
			return dErrors.New(dErrors.CodeConflict, err.Error())
		}

		previous := audit.Details{
			"email":     user.Email,
			"firstName": user.FirstName,
			"lastName":  user.LastName,
		}
		user.ApplyDeactivation(requestcontext.Now(ctx))
		if err := s.users.Update(ctx, user); err != nil {
			return s.classifyWrite(err)
		}

		updated = user
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionDelete,
			EntityType: models.EntityType,
			EntityID:   user.AuditEntityID(),
			Reason:     reason,
			Details:    audit.Details{"previousValues": previous},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, updated, "deactivate")
	return updated, nil
}

// Get loads a single user.
func (s *Service) Get(ctx context.Context, id domain.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, classifyRead(err)
	}
	return user, nil
}

// ListQuery filters and paginates user listings.
type ListQuery struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}

// List returns users ordered by email.
func (s *Service) List(ctx context.Context, query ListQuery) ([]*models.User, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 500 {
		query.Limit = 500
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	users, err := s.users.List(ctx, query.IncludeInactive, query.Limit, query.Offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list users")
	}
	return users, nil
}

func (s *Service) afterCommit(ctx context.Context, user *models.User, operation string) {
	s.emitter.Invalidate(ctx, invalidation.Tags(models.EntityType, user.AuditEntityID())...)
	s.metrics.IncMutation(models.EntityType, operation)
	s.logger.InfoContext(ctx, "user mutated",
		"operation", operation, "user_id", user.ID.String())
}

func (s *Service) classifyWrite(err error) error {
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		s.metrics.IncConflict(models.EntityType)
		return dErrors.New(dErrors.CodeConflict, "email already in use")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "write user")
}

func classifyRead(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "load user")
}
