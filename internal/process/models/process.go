// Package models defines the manufacturing process aggregate. A process is
// one batch run on a production line and moves through a fixed status
// machine until it reaches a terminal state.
package models

import (
	"strings"
	"time"

	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
)

// EntityType tags audit entries and invalidation events for processes.
const EntityType = "Process"

// Status is the lifecycle state of a process.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var allStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// ParseStatus validates and returns a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := allStatuses[status]; !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown process status %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions holds the allowed status machine edges. Approval moves a
// pending process into progress; rejection and cancellation end it.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the edge from s to next exists.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Process invariants:
//   - Title is unique within its line, case-insensitive
//   - Status only moves along the machine edges; terminal states are final
//   - an inactive process accepts no further mutations
//   - Version increases by exactly one per committed mutation
type Process struct {
	ID          domain.ProcessID `json:"id"`
	LineID      domain.LineID    `json:"lineId"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Status      Status           `json:"status"`
	IsActive    bool             `json:"isActive"`
	Version     int              `json:"version"`
	CreatedBy   domain.UserID    `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// New validates invariants and returns a pending process at version 1.
func New(id domain.ProcessID, lineID domain.LineID, title, description string, createdBy domain.UserID, now time.Time) (*Process, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "process title cannot be empty")
	}
	if len(title) > 200 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "process title must be 200 characters or less")
	}
	if lineID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "process requires a production line")
	}
	return &Process{
		ID:          id,
		LineID:      lineID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      StatusPending,
		IsActive:    true,
		Version:     1,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AuditEntityID implements audit.Identifiable.
func (p *Process) AuditEntityID() string { return p.ID.String() }

// IsUnfinished reports whether the process still blocks its parent line
// from deactivation.
func (p *Process) IsUnfinished() bool {
	return p.IsActive && !p.Status.IsTerminal()
}

// Validate re-checks field invariants after an in-place edit.
func (p *Process) Validate() error {
	if p.Title == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "process title cannot be empty")
	}
	if len(p.Title) > 200 {
		return dErrors.New(dErrors.CodeInvariantViolation, "process title must be 200 characters or less")
	}
	return nil
}

// CanMutate rejects edits on inactive or finished processes.
func (p *Process) CanMutate() error {
	if !p.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "process is inactive")
	}
	if p.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "process is %s", p.Status)
	}
	return nil
}

// ApplyTransition moves the process to next, enforcing the status machine.
func (p *Process) ApplyTransition(next Status, now time.Time) error {
	if !p.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "process is inactive")
	}
	if !p.Status.CanTransition(next) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"cannot transition process from %s to %s", p.Status, next)
	}
	p.Status = next
	p.Touch(now)
	return nil
}

// CanDeactivate rejects a repeated soft delete.
func (p *Process) CanDeactivate() error {
	if !p.IsActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "process is already inactive")
	}
	return nil
}

// ApplyDeactivation soft-deletes the process.
func (p *Process) ApplyDeactivation(now time.Time) {
	p.IsActive = false
	p.Touch(now)
}

// Touch records a committed mutation.
func (p *Process) Touch(now time.Time) {
	p.Version++
	p.UpdatedAt = now
}

// Clone returns a deep copy.
func (p *Process) Clone() *Process {
	clone := *p
	return &clone
}
