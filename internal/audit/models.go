// Package audit defines the immutable compliance record and the contracts
// for writing and querying it. An entry exists iff the mutation it documents
// is durably visible: both are written in the same Unit-of-Work transaction
// and neither can be observed without the other.
package audit

import (
	"time"

	"linetrace/pkg/domain"
)

// Action classifies what happened to the entity.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionView    Action = "VIEW"
)

var knownActions = map[Action]bool{
	ActionCreate:  true,
	ActionUpdate:  true,
	ActionDelete:  true,
	ActionApprove: true,
	ActionReject:  true,
	ActionView:    true,
}

// ParseAction returns the Action matching s, if any.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, knownActions[a]
}

// IsValid reports whether the action is one of the known actions.
func (a Action) IsValid() bool { return knownActions[a] }

// Details is the optional structured payload of an entry. Conventions:
// {"changes": ..., "previousValues": ...} for UPDATE, a snapshot of created
// fields for CREATE, an action tag (e.g. "deactivation") for DELETE.
type Details map[string]any

// Entry is the immutable compliance record. It is written exactly once,
// inside the same transaction as the mutation it documents, and never
// updated or deleted afterward.
type Entry struct {
	ID         domain.EntryID `json:"id"`
	ActorID    domain.UserID  `json:"actorId"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Reason     string         `json:"reason"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Details    Details        `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Query bounds and filters audit lookups. Results are ordered by CreatedAt
// ascending.
type Query struct {
	Limit  int
	Offset int
	// ActorID narrows FindByEntity to one actor when non-nil.
	ActorID domain.UserID
	// EntityType narrows FindByActor to one entity type when non-empty.
	EntityType string
}

const (
	// DefaultQueryLimit applies when a query specifies no limit.
	DefaultQueryLimit = 50
	// MaxQueryLimit caps a single page.
	MaxQueryLimit = 500
)

// Normalize clamps pagination to sane bounds.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
