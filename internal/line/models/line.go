package models

import (
	"strings"
	"time"

	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
)

// EntityType is the logical name recorded on audit entries for production
// lines.
const EntityType = "ProductionLine"

// Line is the aggregate root for a production line.
//
// Invariants:
//   - Name is non-empty, at most 128 characters, unique across lines
//   - Deletion is a soft flag flip; rows are never removed so historical
//     audit entries keep a valid reference
//   - Version increases by exactly one per committed mutation
type Line struct {
	ID          domain.LineID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	IsActive    bool          `json:"isActive"`
	Version     int           `json:"version"`
	CreatedBy   domain.UserID `json:"createdBy"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// New validates invariants and returns an active line at version 1.
func New(id domain.LineID, name, description string, createdBy domain.UserID, now time.Time) (*Line, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "production line name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "production line name must be 128 characters or less")
	}
	return &Line{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsActive:    true,
		Version:     1,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AuditEntityID implements audit.Identifiable.
func (l *Line) AuditEntityID() string { return l.ID.String() }

// Validate re-checks field invariants after an in-place edit.
func (l *Line) Validate() error {
	if l.Name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "production line name cannot be empty")
	}
	if len(l.Name) > 128 {
		return dErrors.New(dErrors.CodeInvariantViolation, "production line name must be 128 characters or less")
	}
	return nil
}

// Touch records a committed mutation.
func (l *Line) Touch(now time.Time) {
	l.Version++
	l.UpdatedAt = now
}

// CanDeactivate checks the line can transition to inactive.
func (l *Line) CanDeactivate() error {
	if !l.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "production line is already inactive")
	}
	return nil
}

// ApplyDeactivation flips the soft-delete flag. Call CanDeactivate first.
func (l *Line) ApplyDeactivation(now time.Time) {
	l.IsActive = false
	l.Version++
	l.UpdatedAt = now
}

// CanReactivate checks the line can transition to active.
func (l *Line) CanReactivate() error {
	if l.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "production line is already active")
	}
	return nil
}

// ApplyReactivation restores the line. Call CanReactivate first.
func (l *Line) ApplyReactivation(now time.Time) {
	l.IsActive = true
	l.Version++
	l.UpdatedAt = now
}

// Clone returns a deep copy; stores hand out clones so callers never alias
// store state.
func (l *Line) Clone() *Line {
	copied := *l
	return &copied
}
