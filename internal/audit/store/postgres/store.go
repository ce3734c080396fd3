// Package postgres persists audit entries in PostgreSQL. Appends join a
// transaction and also write a transactional outbox row, so downstream
// consumers see exactly the entries that committed.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"linetrace/internal/audit"
	"linetrace/pkg/domain"
	dErrors "linetrace/pkg/domain-errors"
	txcontext "linetrace/pkg/platform/tx"
)

// Store implements audit.Store over database/sql.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes the entry and its outbox row. It refuses to run outside a
// Unit-of-Work transaction: an audit entry must never commit independently
// of the mutation it documents.
func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	tx, ok := txcontext.From(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit append outside transaction")
	}

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	const insertEntry = `
		INSERT INTO audit_entries (
			id, actor_id, action, entity_type, entity_id,
			reason, ip_address, user_agent, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.ExecContext(ctx, insertEntry,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.ActorID),
		string(entry.Action),
		entry.EntityType,
		entry.EntityID,
		entry.Reason,
		nullString(entry.IPAddress),
		nullString(entry.UserAgent),
		nullBytes(details),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	const insertOutbox = `
		INSERT INTO audit_outbox (id, entry_id, entity_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, insertOutbox,
		uuid.New(),
		uuid.UUID(entry.ID),
		entry.EntityType,
		payload,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

const selectColumns = `
	id, actor_id, action, entity_type, entity_id,
	reason, ip_address, user_agent, details, created_at
`

// FindByEntity returns entries for one entity instance, CreatedAt
// ascending.
func (s *Store) FindByEntity(ctx context.Context, entityType, entityID string, q audit.Query) ([]*audit.Entry, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_entries
		WHERE entity_type = $1 AND entity_id = $2
		  AND ($3::uuid IS NULL OR actor_id = $3)
		ORDER BY created_at ASC
		LIMIT $4 OFFSET $5
	`
	var actorFilter any
	if !q.ActorID.IsNil() {
		actorFilter = uuid.UUID(q.ActorID)
	}
	rows, err := s.db.QueryContext(ctx, query, entityType, entityID, actorFilter, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by entity: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindByActor returns entries for one actor, CreatedAt ascending.
func (s *Store) FindByActor(ctx context.Context, actorID domain.UserID, q audit.Query) ([]*audit.Entry, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM audit_entries
		WHERE actor_id = $1
		  AND ($2 = '' OR entity_type = $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(actorID), q.EntityType, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by actor: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*audit.Entry, error) {
	entries := make([]*audit.Entry, 0)
	for rows.Next() {
		var (
			entry      audit.Entry
			entryID    uuid.UUID
			actorID    uuid.UUID
			action     string
			ipAddress  sql.NullString
			userAgent  sql.NullString
			rawDetails []byte
		)
		err := rows.Scan(
			&entryID,
			&actorID,
			&action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Reason,
			&ipAddress,
			&userAgent,
			&rawDetails,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.ID = domain.EntryID(entryID)
		entry.ActorID = domain.UserID(actorID)
		entry.Action = audit.Action(action)
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String
		if len(rawDetails) > 0 {
			if err := json.Unmarshal(rawDetails, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
