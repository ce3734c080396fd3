package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"linetrace/internal/audit"
	auditmem "linetrace/internal/audit/store/memory"
	"linetrace/internal/user/models"
	userstore "linetrace/internal/user/store"
	"linetrace/internal/uow"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/requestcontext"
)

type UserServiceSuite struct {
	suite.Suite
	users    *userstore.Memory
	audits   *auditmem.Store
	service  *Service
	operator context.Context
	admin    context.Context
	adminID  domain.UserID
}

func (s *UserServiceSuite) SetupTest() {
	s.users = userstore.NewMemory()
	s.audits = auditmem.New()

	manager := uow.NewMemory(s.users, s.audits)
	s.service = New(s.users, manager, audit.NewRecorder(s.audits),
		WithBcryptCost(bcrypt.MinCost))

	s.operator = requestcontext.WithActor(context.Background(),
		requestcontext.Actor{ID: domain.NewUserID(), Role: domain.RoleOperator})
	s.adminID = domain.NewUserID()
	s.admin = requestcontext.WithActor(context.Background(),
		requestcontext.Actor{ID: s.adminID, Role: domain.RoleAdmin})
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) create(email string, role domain.Role) *models.User {
	user, err := s.service.Create(s.admin, CreateInput{
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      role,
		Password:  "correct-horse-battery",
		Reason:    "onboarding",
	})
	s.Require().NoError(err)
	return user
}

func (s *UserServiceSuite) TestCreate() {
	s.Run("hashes the password with bcrypt", func() {
		user := s.create("ada@example.com", domain.RoleOperator)

		s.True(strings.HasPrefix(user.PasswordHash, "$2"))
		s.NoError(bcrypt.CompareHashAndPassword(
			[]byte(user.PasswordHash), []byte("correct-horse-battery")))
	})

	s.Run("redacts the password from audit details", func() {
		user := s.create("redact@example.com", domain.RoleOperator)

		entries, err := s.audits.FindByEntity(s.admin, models.EntityType, user.AuditEntityID(), audit.Query{})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(audit.Redacted, entries[0].Details["password"])
		s.Equal("redact@example.com", entries[0].Details["email"])
	})

	s.Run("rejects a short password", func() {
		_, err := s.service.Create(s.admin, CreateInput{
			Email: "x@example.com", FirstName: "A", LastName: "B",
			Role: domain.RoleOperator, Password: "short", Reason: "r",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate email is a conflict", func() {
		s.create("dup@example.com", domain.RoleOperator)
		_, err := s.service.Create(s.admin, CreateInput{
			Email: "DUP@example.com", FirstName: "A", LastName: "B",
			Role: domain.RoleOperator, Password: "correct-horse-battery", Reason: "r",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("operator cannot create an admin", func() {
		_, err := s.service.Create(s.operator, CreateInput{
			Email: "boss@example.com", FirstName: "A", LastName: "B",
			Role: domain.RoleAdmin, Password: "correct-horse-battery", Reason: "r",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *UserServiceSuite) TestUpdate() {
	s.Run("name change needs no special role", func() {
		user := s.create("rename@example.com", domain.RoleOperator)

		name := "Grace"
		updated, err := s.service.Update(s.operator, user.ID, UpdateInput{
			FirstName: &name, Reason: "married name",
		})
		s.Require().NoError(err)
		s.Equal("Grace", updated.FirstName)
		s.Equal(2, updated.Version)
	})

	s.Run("role change requires admin", func() {
		user := s.create("promote@example.com", domain.RoleOperator)

		role := domain.RoleSupervisor
		_, err := s.service.Update(s.operator, user.ID, UpdateInput{
			Role: &role, Reason: "promotion",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		updated, err := s.service.Update(s.admin, user.ID, UpdateInput{
			Role: &role, Reason: "promotion",
		})
		s.Require().NoError(err)
		s.Equal(domain.RoleSupervisor, updated.Role)

		entries, err := s.audits.FindByEntity(s.admin, models.EntityType, user.AuditEntityID(), audit.Query{})
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		changes, ok := entries[1].Details["changes"].(map[string]any)
		s.Require().True(ok)
		s.Equal(map[string]any{"role": "SUPERVISOR"}, changes, "changes must hold exactly the changed fields")
		previous, ok := entries[1].Details["previousValues"].(map[string]any)
		s.Require().True(ok)
		s.Equal("OPERATOR", previous["role"])
	})

	s.Run("no effective changes is a validation error", func() {
		user := s.create("same@example.com", domain.RoleOperator)

		email := "same@example.com"
		_, err := s.service.Update(s.admin, user.ID, UpdateInput{Email: &email, Reason: "r"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *UserServiceSuite) TestDeactivateAnonymizes() {
	user := s.create("pii@example.com", domain.RoleOperator)

	updated, err := s.service.Deactivate(s.admin, user.ID, "left the company")
	s.Require().NoError(err)

	s.False(updated.IsActive)
	s.NotContains(updated.Email, "pii@example.com")
	s.Contains(updated.Email, user.ID.String())
	s.Equal("Deleted", updated.FirstName)
	s.Equal("User", updated.LastName)

	entries, err := s.audits.FindByEntity(s.admin, models.EntityType, user.AuditEntityID(), audit.Query{})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	previous, ok := entries[1].Details["previousValues"].(map[string]any)
	s.Require().True(ok)
	s.Equal("pii@example.com", previous["email"])
	s.Equal("Ada", previous["firstName"])

	_, err = s.service.Deactivate(s.admin, user.ID, "again")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *UserServiceSuite) TestDeactivateSelfIsRefused() {
	_, err := s.service.Deactivate(s.admin, s.adminID, "oops")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *UserServiceSuite) TestFindByEmailIsCaseInsensitive() {
	user := s.create("Case@Example.com", domain.RoleOperator)

	found, err := s.users.FindByEmail(context.Background(), "case@example.COM")
	s.Require().NoError(err)
	s.Equal(user.ID, found.ID)
}
