package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"linetrace/internal/platform/postgres"
	"linetrace/internal/process/models"
	"linetrace/pkg/domain"
	"linetrace/pkg/platform/sentinel"
	txcontext "linetrace/pkg/platform/tx"
)

// Postgres persists processes in PostgreSQL. The processes table carries a
// unique index on (line_id, lower(title)), so concurrent inserts of the
// same title on one line are decided at commit time.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed process store.
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
		return nil, errors.New("process write outside transaction")
	}
	return tx, nil
}

const processColumns = `id, line_id, title, description, status, is_active, version, created_by, created_at, updated_at`

// Create inserts the process. A duplicate (line, title) pair is reported
// as sentinel.ErrAlreadyUsed.
func (s *Postgres) Create(ctx context.Context, process *models.Process) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO processes (`+processColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		process.ID.String(), process.LineID.String(), process.Title, process.Description,
		string(process.Status), process.IsActive, process.Version,
		process.CreatedBy.String(), process.CreatedAt, process.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

// FindByID loads a process by ID.
func (s *Postgres) FindByID(ctx context.Context, id domain.ProcessID) (*models.Process, error) {
	row := s.reader(ctx).QueryRowContext(ctx, `
		SELECT `+processColumns+` FROM processes WHERE id = $1`, id.String())
	return scanProcess(row)
}

// FindByIDForUpdate loads a process with a row lock.
func (s *Postgres) FindByIDForUpdate(ctx context.Context, id domain.ProcessID) (*models.Process, error) {
	q, err := s.writer(ctx)
	if err != nil {
		return nil, err
	}
	row := q.QueryRowContext(ctx, `
		SELECT `+processColumns+` FROM processes WHERE id = $1 FOR UPDATE`, id.String())
	return scanProcess(row)
}

// Update writes the full process row.
func (s *Postgres) Update(ctx context.Context, process *models.Process) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE processes
		SET title = $2, description = $3, status = $4, is_active = $5, version = $6, updated_at = $7
		WHERE id = $1`,
		process.ID.String(), process.Title, process.Description, string(process.Status),
		process.IsActive, process.Version, process.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update process: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListByLine returns the line's processes ordered by creation time.
func (s *Postgres) ListByLine(ctx context.Context, lineID domain.LineID, includeInactive bool, limit, offset int) ([]*models.Process, error) {
	rows, err := s.reader(ctx).QueryContext(ctx, `
		SELECT `+processColumns+`
		FROM processes
		WHERE line_id = $1 AND ($2 OR is_active)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4`, lineID.String(), includeInactive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	processes := make([]*models.Process, 0, limit)
	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		processes = append(processes, process)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return processes, nil
}

// CountUnfinishedByLine counts active non-terminal processes on the line.
// Runs on the caller's transaction so the count and the line write commit
// under one snapshot.
func (s *Postgres) CountUnfinishedByLine(ctx context.Context, lineID domain.LineID) (int, error) {
	var count int
	err := s.reader(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processes
		WHERE line_id = $1 AND is_active AND status NOT IN ($2, $3)`,
		lineID.String(), string(models.StatusCompleted), string(models.StatusCancelled),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unfinished processes: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (*models.Process, error) {
	var (
		process   models.Process
		rawID     string
		rawLine   string
		rawStatus string
		rawBy     string
	)
	err := row.Scan(&rawID, &rawLine, &process.Title, &process.Description, &rawStatus,
		&process.IsActive, &process.Version, &rawBy, &process.CreatedAt, &process.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan process: %w", err)
	}
	id, err := domain.ParseProcessID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan process id: %w", err)
	}
	lineID, err := domain.ParseLineID(rawLine)
	if err != nil {
		return nil, fmt.Errorf("scan process line id: %w", err)
	}
	by, err := domain.ParseUserID(rawBy)
	if err != nil {
		return nil, fmt.Errorf("scan process creator: %w", err)
	}
	process.ID = id
	process.LineID = lineID
	process.CreatedBy = by
	process.Status = models.Status(rawStatus)
	return &process, nil
}
