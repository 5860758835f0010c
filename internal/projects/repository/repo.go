package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
)

// Postgres error codes the catalog translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// mapPQError turns constraint violations into domain errors.
func mapPQError(err error) error {
	var pgErr *pq.Error
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", domain.ErrDuplicateKey, pgErr.Constraint)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.Constraint)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", domain.ErrValidation, pgErr.Constraint)
	}
	return err
}

// ProjectRepository provides persistence operations for projects
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, slug, owner_id, name, description, storage_container, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p     domain.Project
		owner sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Slug, &owner, &p.Name, &p.Description, &p.StorageContainer, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		id := owner.Int64
		p.OwnerID = &id
	}
	return &p, nil
}

// Create inserts p. An empty ID is filled in; CreatedAt/UpdatedAt come back
// from the database.
func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name required", domain.ErrValidation)
	}
	if p.Slug == "" || p.StorageContainer == "" {
		return fmt.Errorf("%w: slug and storage container required", domain.ErrValidation)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	const q = `
INSERT INTO projects (id, slug, owner_id, name, description, storage_container)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;
`
	var owner sql.NullInt64
	if p.OwnerID != nil {
		owner = sql.NullInt64{Int64: *p.OwnerID, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, q, p.ID, p.Slug, owner, p.Name, p.Description, p.StorageContainer).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapPQError(err)
	}
	return nil
}

// Get returns the project with the given id.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*domain.Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1;`
	p, err := scanProject(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListByOwner returns the projects owned by ownerID, newest first.
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Project, error) {
	q := `SELECT ` + projectColumns + `
FROM projects
WHERE owner_id = $1
ORDER BY created_at DESC;`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMeta changes name and/or description. Nil fields are left as is.
func (r *ProjectRepository) UpdateMeta(ctx context.Context, id string, name, description *string) (*domain.Project, error) {
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, fmt.Errorf("%w: name cannot be blank", domain.ErrValidation)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	q := `
UPDATE projects
SET name = COALESCE($2, name),
    description = COALESCE($3, description),
    updated_at = now()
WHERE id = $1
RETURNING ` + projectColumns + `;`
	p, err := scanProject(r.db.QueryRowContext(ctx, q, id, name, description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Delete removes the project; its file records go with it via ON DELETE CASCADE.
func (r *ProjectRepository) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1;`, id)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}
