package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
)

// FileRepository persists file and folder records of a project.
type FileRepository struct {
	db *sql.DB
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// UpsertFile writes a file record keyed by (project, blob key). Replaying the
// same key updates the existing row and rec.ID is set to its id.
func (r *FileRepository) UpsertFile(ctx context.Context, rec *domain.FileRecord) error {
	rec.Kind = domain.KindFile
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	const q = `
INSERT INTO project_files (id, project_id, parent_id, name, kind, blob_key, language, size_in_bytes)
VALUES ($1, $2, $3, $4, 'file', $5, $6, $7)
ON CONFLICT (project_id, blob_key) WHERE kind = 'file'
DO UPDATE SET parent_id = EXCLUDED.parent_id,
              name = EXCLUDED.name,
              language = EXCLUDED.language,
              size_in_bytes = EXCLUDED.size_in_bytes,
              updated_at = now()
RETURNING id, created_at, updated_at;
`
	err := r.db.QueryRowContext(ctx, q,
		rec.ID, rec.ProjectID, nullString(rec.ParentID), rec.Name,
		*rec.BlobKey, rec.Language, *rec.SizeInBytes,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return mapPQError(err)
	}
	return nil
}

// UpsertFolder writes a top-level folder record keyed by (project, name).
func (r *FileRepository) UpsertFolder(ctx context.Context, rec *domain.FileRecord) error {
	rec.Kind = domain.KindFolder
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ParentID != nil {
		return fmt.Errorf("%w: folder %q cannot be nested", domain.ErrValidation, rec.Name)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	const q = `
INSERT INTO project_files (id, project_id, parent_id, name, kind)
VALUES ($1, $2, NULL, $3, 'folder')
ON CONFLICT (project_id, name) WHERE kind = 'folder'
DO UPDATE SET updated_at = now()
RETURNING id, created_at, updated_at;
`
	err := r.db.QueryRowContext(ctx, q, rec.ID, rec.ProjectID, rec.Name).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return mapPQError(err)
	}
	return nil
}

// List returns every record of the project. Rows come back in creation order
// but callers should not rely on it.
func (r *FileRepository) List(ctx context.Context, projectID string) ([]domain.FileRecord, error) {
	const q = `
SELECT id, project_id, parent_id, name, kind, blob_key, language, size_in_bytes, created_at, updated_at
FROM project_files
WHERE project_id = $1
ORDER BY created_at, id;
`
	rows, err := r.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FileRecord
	for rows.Next() {
		var (
			rec      domain.FileRecord
			parentID sql.NullString
			blobKey  sql.NullString
			language sql.NullString
			size     sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &parentID, &rec.Name, &rec.Kind,
			&blobKey, &language, &size, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			rec.ParentID = &parentID.String
		}
		if blobKey.Valid {
			rec.BlobKey = &blobKey.String
		}
		if size.Valid {
			rec.SizeInBytes = &size.Int64
		}
		rec.Language = language.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
