package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"linetrace/internal/platform/postgres"
	"linetrace/internal/user/models"
	"linetrace/pkg/domain"
	"linetrace/pkg/platform/sentinel"
	txcontext "linetrace/pkg/platform/tx"
)

// Postgres persists users in PostgreSQL. The users table enforces email
// uniqueness with a lower(email) unique index.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
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
		return nil, errors.New("user write outside transaction")
	}
	return tx, nil
}

const userColumns = `id, email, first_name, last_name, role, password_hash, is_active, version, created_at, updated_at`

// Create inserts the user. A duplicate email is reported as
// sentinel.ErrAlreadyUsed.
func (s *Postgres) Create(ctx context.Context, user *models.User) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID.String(), user.Email, user.FirstName, user.LastName,
		user.Role.String(), user.PasswordHash, user.IsActive, user.Version,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID loads a user by ID.
func (s *Postgres) FindByID(ctx context.Context, id domain.UserID) (*models.User, error) {
	row := s.reader(ctx).QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return scanUser(row)
}

// FindByEmail loads a user by email, case-insensitive.
func (s *Postgres) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.reader(ctx).QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))
	return scanUser(row)
}

// FindByIDForUpdate loads a user with a row lock.
func (s *Postgres) FindByIDForUpdate(ctx context.Context, id domain.UserID) (*models.User, error) {
	q, err := s.writer(ctx)
	if err != nil {
		return nil, err
	}
	row := q.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id.String())
	return scanUser(row)
}

// Update writes the full user row.
func (s *Postgres) Update(ctx context.Context, user *models.User) error {
	q, err := s.writer(ctx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, role = $5,
		    password_hash = $6, is_active = $7, version = $8, updated_at = $9
		WHERE id = $1`,
		user.ID.String(), user.Email, user.FirstName, user.LastName,
		user.Role.String(), user.PasswordHash, user.IsActive, user.Version, user.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List returns users ordered by email.
func (s *Postgres) List(ctx context.Context, includeInactive bool, limit, offset int) ([]*models.User, error) {
	rows, err := s.reader(ctx).QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 OR is_active)
		ORDER BY email ASC
		LIMIT $2 OFFSET $3`, includeInactive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user    models.User
		rawID   string
		rawRole string
	)
	err := row.Scan(&rawID, &user.Email, &user.FirstName, &user.LastName, &rawRole,
		&user.PasswordHash, &user.IsActive, &user.Version, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	id, err := domain.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan user id: %w", err)
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return nil, fmt.Errorf("scan user role: %w", err)
	}
	user.ID = id
	user.Role = role
	return &user, nil
}
