// Package outbox relays committed audit entries to Kafka. Rows are written
// transactionally by the audit store; the relay polls for unpublished rows
// and publishes them, so the stream never carries an entry whose mutation
// rolled back.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Row is one pending outbox record.
type Row struct {
	ID         uuid.UUID
	EntryID    uuid.UUID
	EntityType string
	Payload    []byte
	CreatedAt  time.Time
}

// Store reads and settles outbox rows.
type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Row, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// PostgresStore implements Store over the audit_outbox table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed outbox store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FetchUnpublished returns up to limit pending rows, oldest first. The
// query runs in its own implicit transaction, so SKIP LOCKED only narrows
// overlap between relays polling at the same instant; rows stay unlocked
// across the publish window. Delivery is at-least-once and a row fetched
// by two relays can be published twice; consumers must tolerate replays.
func (s *PostgresStore) FetchUnpublished(ctx context.Context, limit int) ([]Row, error) {
	const query = `
		SELECT id, entry_id, entity_type, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.EntryID, &row.EntityType, &row.Payload, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

// MarkPublished settles rows after a successful publish.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
		UPDATE audit_outbox
		SET published_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}
