// Package models defines the user aggregate. Users double as audit
// actors, so a deactivated user is anonymized rather than deleted: the
// audit trail keeps a valid actor reference forever.
package models

import (
	"fmt"
	"strings"
	"time"

	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
)

// EntityType tags audit entries and invalidation events for users.
const EntityType = "User"

// User invariants:
//   - Email is unique, case-insensitive
//   - PasswordHash is never serialized
//   - deactivation anonymizes PII in the same transaction
//   - Version increases by exactly one per committed mutation
type User struct {
	ID           domain.UserID `json:"id"`
	Email        string        `json:"email"`
	FirstName    string        `json:"firstName"`
	LastName     string        `json:"lastName"`
	Role         domain.Role   `json:"role"`
	PasswordHash string        `json:"-"`
	IsActive     bool          `json:"isActive"`
	Version      int           `json:"version"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// New validates invariants and returns an active user at version 1. The
// password hash is produced by the service; models never see plaintext.
func New(id domain.UserID, email, firstName, lastName string, role domain.Role, passwordHash string, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user requires a valid email")
	}
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user requires first and last name")
	}
	if !role.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown role %q", role)
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user requires a password hash")
	}
	return &User{
		ID:           id,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		PasswordHash: passwordHash,
		IsActive:     true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AuditEntityID implements audit.Identifiable.
func (u *User) AuditEntityID() string { return u.ID.String() }

// Validate re-checks field invariants after an in-place edit.
func (u *User) Validate() error {
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return dErrors.New(dErrors.CodeInvariantViolation, "user requires a valid email")
	}
	if u.FirstName == "" || u.LastName == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "user requires first and last name")
	}
	if !u.Role.IsValid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown role %q", u.Role)
	}
	return nil
}

// CanDeactivate rejects a repeated soft delete.
func (u *User) CanDeactivate() error {
	if !u.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "user is already inactive")
	}
	return nil
}

// ApplyDeactivation soft-deletes the user and anonymizes PII. The
// anonymized email stays unique by embedding the user ID.
func (u *User) ApplyDeactivation(now time.Time) {
	u.IsActive = false
	u.Email = fmt.Sprintf("deleted-%s@anonymized.invalid", u.ID.String())
	u.FirstName = "Deleted"
	u.LastName = "User"
	u.Touch(now)
}

// Touch records a committed mutation.
func (u *User) Touch(now time.Time) {
	u.Version++
	u.UpdatedAt = now
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	clone := *u
	return &clone
}
