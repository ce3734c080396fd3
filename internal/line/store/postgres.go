package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"linetrace/internal/line/models"
	"linetrace/internal/platform/postgres"
	"linetrace/pkg/domain"
	"linetrace/pkg/platform/sentinel"
	txcontext "linetrace/pkg/platform/tx"
)

// Postgres persists production lines in PostgreSQL. Write methods run on
// the transaction carried by the context; the production_lines table
// enforces name uniqueness with a lower(name) unique index, so a losing
// concurrent insert surfaces as a unique violation at commit time.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed line store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) reader(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) writer(ctx context.Context) (querier, error) {
	tx, ok := txcontext.From(ctx)
	if !ok {
		return nil, errors.New("line write outside transaction")
	}
	return tx, nil
}

// Create inserts the line. A duplicate name is reported as
// sentinel.ErrAlreadyUsed so callers can classify it as a conflict.
func (s *Postgres) Create(ctx context.Context, line *models.Line) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO production_lines (id, name, description, is_active, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		line.ID.String(), line.Name, line.Description, line.IsActive,
		line.Version, line.CreatedBy.String(), line.CreatedAt, line.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert production line: %w", err)
	}
	return nil
}

// FindByID loads a line by ID.
func (s *Postgres) FindByID(ctx context.Context, id domain.LineID) (*models.Line, error) {
	row := s.reader(ctx).QueryRowContext(ctx, `
		SELECT id, name, description, is_active, version, created_by, created_at, updated_at
		FROM production_lines WHERE id = $1`, id.String())
	return scanLine(row)
}

// FindByIDForUpdate loads a line with a row lock for a transactional
// read-modify-write.
func (s *Postgres) FindByIDForUpdate(ctx context.Context, id domain.LineID) (*models.Line, error) {
	q, err := s.writer(ctx)
	if err != nil {
		return nil, err
	}
	row := q.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, version, created_by, created_at, updated_at
		FROM production_lines WHERE id = $1 FOR UPDATE`, id.String())
	return scanLine(row)
}

// Update writes the full line row.
func (s *Postgres) Update(ctx context.Context, line *models.Line) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE production_lines
		SET name = $2, description = $3, is_active = $4, version = $5, updated_at = $6
		WHERE id = $1`,
		line.ID.String(), line.Name, line.Description, line.IsActive, line.Version, line.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update production line: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update production line: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List returns lines ordered by name.
func (s *Postgres) List(ctx context.Context, includeInactive bool, limit, offset int) ([]*models.Line, error) {
	rows, err := s.reader(ctx).QueryContext(ctx, `
		SELECT id, name, description, is_active, version, created_by, created_at, updated_at
		FROM production_lines
		WHERE ($1 OR is_active)
		ORDER BY name ASC
		LIMIT $2 OFFSET $3`, includeInactive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list production lines: %w", err)
	}
	defer rows.Close()

	lines := make([]*models.Line, 0, limit)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list production lines: %w", err)
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(row rowScanner) (*models.Line, error) {
	var (
		line  models.Line
		rawID string
		rawBy string
	)
	err := row.Scan(&rawID, &line.Name, &line.Description, &line.IsActive,
		&line.Version, &rawBy, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan production line: %w", err)
	}
	id, err := domain.ParseLineID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan production line id: %w", err)
	}
	by, err := domain.ParseUserID(rawBy)
	if err != nil {
		return nil, fmt.Errorf("scan production line creator: %w", err)
	}
	line.ID = id
	line.CreatedBy = by
	return &line, nil
}
