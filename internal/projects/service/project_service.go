package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cipherstudio/sandbox-backend/internal/auth"
	"github.com/cipherstudio/sandbox-backend/internal/blobstore"
	"github.com/cipherstudio/sandbox-backend/internal/logging"
	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
	"github.com/cipherstudio/sandbox-backend/internal/projects/intents"
)

// ProjectStore is the project half of the metadata catalog.
type ProjectStore interface {
	Create(ctx context.Context, p *domain.Project) error
	Get(ctx context.Context, id string) (*domain.Project, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Project, error)
	UpdateMeta(ctx context.Context, id string, name, description *string) (*domain.Project, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// FileStore is the file/folder half of the metadata catalog.
type FileStore interface {
	UpsertFile(ctx context.Context, rec *domain.FileRecord) error
	UpsertFolder(ctx context.Context, rec *domain.FileRecord) error
	List(ctx context.Context, projectID string) ([]domain.FileRecord, error)
}

// IntentLog journals multi-step writes.
type IntentLog interface {
	Begin(ctx context.Context, op intents.Operation, projectID, container string) (*intents.Intent, error)
	AddBlob(ctx context.Context, intentID, key string) error
	Complete(ctx context.Context, intentID string) error
}

// ProjectService saves and loads whole projects across the blob store and
// the metadata catalog.
type ProjectService struct {
	projects ProjectStore
	files    FileStore
	blobs    blobstore.Store
	intents  IntentLog
	now      func() time.Time
}

// NewProjectService creates a new project service
func NewProjectService(projects ProjectStore, files FileStore, blobs blobstore.Store, journal IntentLog) *ProjectService {
	return &ProjectService{
		projects: projects,
		files:    files,
		blobs:    blobs,
		intents:  journal,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for slugs.
func (s *ProjectService) WithClock(now func() time.Time) *ProjectService {
	s.now = now
	return s
}

// SaveProject creates a project with its files. A nil OwnerID saves an
// anonymous project. On failure the partially written state is left to the
// reconciler.
func (s *ProjectService) SaveProject(ctx context.Context, req domain.SaveRequest) (*domain.Project, error) {
	log := logging.WithOperation(ctx, "save_project")

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name required", domain.ErrValidation)
	}
	if err := validateFiles(req.Files); err != nil {
		return nil, err
	}

	p := &domain.Project{
		ID:               uuid.NewString(),
		Slug:             domain.NewSlug(name, s.now()),
		OwnerID:          req.OwnerID,
		Name:             name,
		Description:      strings.TrimSpace(req.Description),
		StorageContainer: domain.NewContainerName(),
	}

	intent, err := s.intents.Begin(ctx, intents.OpCreate, p.ID, p.StorageContainer)
	if err != nil {
		return nil, err
	}

	written, err := s.create(ctx, p, intent.ID, req.Files)
	if err != nil {
		logPartial(log, p, intent.ID, written, err)
		return nil, err
	}

	if err := s.intents.Complete(ctx, intent.ID); err != nil {
		logPartial(log, p, intent.ID, written, err)
		return nil, err
	}

	log.Info("project saved",
		"project_id", p.ID, "slug", p.Slug, "files", len(written), "anonymous", p.IsAnonymous())
	return p, nil
}

func (s *ProjectService) create(ctx context.Context, p *domain.Project, intentID string, files []domain.FileInput) ([]string, error) {
	if err := s.blobs.CreateContainer(ctx, p.StorageContainer); err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.writeFiles(ctx, p, intentID, files)
}

// writeFiles stores each file's bytes and its record, in input order. The
// blob key is recorded in the intent before the bytes are written.
func (s *ProjectService) writeFiles(ctx context.Context, p *domain.Project, intentID string, files []domain.FileInput) ([]string, error) {
	folders := make(map[string]string)
	written := make([]string, 0, len(files))

	for _, f := range files {
		folder, base, err := domain.SplitPath(f.Name)
		if err != nil {
			return written, err
		}

		var parentID *string
		if folder != "" {
			id, ok := folders[folder]
			if !ok {
				rec := &domain.FileRecord{ProjectID: p.ID, Name: folder, Kind: domain.KindFolder}
				if err := s.files.UpsertFolder(ctx, rec); err != nil {
					return written, fmt.Errorf("folder %q: %w", folder, err)
				}
				id = rec.ID
				folders[folder] = id
			}
			parentID = &id
		}

		key := base
		if folder != "" {
			key = folder + "/" + base
		}
		lang := domain.InferLanguage(key, f.Language)
		data := []byte(f.Content)

		if err := s.intents.AddBlob(ctx, intentID, key); err != nil {
			return written, err
		}
		if _, err := s.blobs.Put(ctx, p.StorageContainer, key, data, domain.ContentType(lang)); err != nil {
			return written, fmt.Errorf("write %q: %w", key, err)
		}
		written = append(written, key)

		size := int64(len(data))
		rec := &domain.FileRecord{
			ProjectID:   p.ID,
			ParentID:    parentID,
			Name:        base,
			Kind:        domain.KindFile,
			BlobKey:     &key,
			Language:    lang,
			SizeInBytes: &size,
		}
		if err := s.files.UpsertFile(ctx, rec); err != nil {
			return written, fmt.Errorf("record %q: %w", key, err)
		}
	}
	return written, nil
}

func logPartial(log *slog.Logger, p *domain.Project, intentID string, written []string, err error) {
	log.Error("partial save left for reconciliation",
		"project_id", p.ID,
		"container", p.StorageContainer,
		"intent_id", intentID,
		"blobs_written", written,
		"error", err,
	)
}

// LoadProjectFiles returns the project and every file with its content.
// Unreadable blobs come back with empty content and Missing set.
func (s *ProjectService) LoadProjectFiles(ctx context.Context, projectID string, callerID *int64) (*domain.ProjectFiles, error) {
	log := logging.WithOperation(ctx, "load_project_files")

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := auth.AuthorizeRead(p, callerID); err != nil {
		return nil, err
	}

	recs, err := s.files.List(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	folders := make(map[string]string)
	for _, rec := range recs {
		if rec.Kind == domain.KindFolder {
			folders[rec.ID] = rec.Name
		}
	}

	out := &domain.ProjectFiles{Project: p, Files: make([]domain.LoadedFile, 0, len(recs))}
	for _, rec := range recs {
		lf := domain.LoadedFile{FileRecord: rec, Path: domain.FilePath(rec, folders)}
		if rec.Kind == domain.KindFile && rec.BlobKey != nil {
			data, err := s.blobs.Get(ctx, p.StorageContainer, *rec.BlobKey)
			if err != nil {
				log.Warn("blob unreadable, returning empty content",
					"project_id", p.ID, "blob_key", *rec.BlobKey, "error", err)
				lf.Missing = true
			} else {
				lf.Content = string(data)
			}
		}
		out.Files = append(out.Files, lf)
	}
	return out, nil
}

// CreateProject creates an empty project owned by ownerID.
func (s *ProjectService) CreateProject(ctx context.Context, ownerID int64, name, description string) (*domain.Project, error) {
	return s.SaveProject(ctx, domain.SaveRequest{OwnerID: &ownerID, Name: name, Description: description})
}

// GetProject returns project metadata. No authorization is applied.
func (s *ProjectService) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	return s.projects.Get(ctx, projectID)
}

// ListProjects returns the caller's projects, newest first.
func (s *ProjectService) ListProjects(ctx context.Context, ownerID int64) ([]domain.Project, error) {
	return s.projects.ListByOwner(ctx, ownerID)
}

// UpdateProject changes metadata and, when files are given, overwrites them
// in the project's existing container.
func (s *ProjectService) UpdateProject(ctx context.Context, projectID string, callerID *int64, req domain.UpdateRequest) (*domain.Project, error) {
	log := logging.WithOperation(ctx, "update_project")

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, fmt.Errorf("%w: project name cannot be blank", domain.ErrValidation)
	}
	if err := validateFiles(req.Files); err != nil {
		return nil, err
	}

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := auth.AuthorizeWrite(p, callerID); err != nil {
		return nil, err
	}

	if len(req.Files) > 0 {
		intent, err := s.intents.Begin(ctx, intents.OpUpdate, p.ID, p.StorageContainer)
		if err != nil {
			return nil, err
		}
		written, err := s.writeFiles(ctx, p, intent.ID, req.Files)
		if err == nil {
			err = s.intents.Complete(ctx, intent.ID)
		}
		if err != nil {
			logPartial(log, p, intent.ID, written, err)
			return nil, err
		}
	}

	name, description := trimmed(req.Name), trimmed(req.Description)
	return s.projects.UpdateMeta(ctx, p.ID, name, description)
}

// DeleteProject removes the project's container and then its catalog rows.
func (s *ProjectService) DeleteProject(ctx context.Context, projectID string, callerID *int64) error {
	log := logging.WithOperation(ctx, "delete_project")

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if err := auth.AuthorizeWrite(p, callerID); err != nil {
		return err
	}

	if err := s.blobs.DeleteContainer(ctx, p.StorageContainer); err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	deleted, err := s.projects.Delete(ctx, p.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}

	log.Info("project deleted", "project_id", p.ID, "container", p.StorageContainer)
	return nil
}

func validateFiles(files []domain.FileInput) error {
	var errs []error
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		folder, base, err := domain.SplitPath(f.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		key := base
		if folder != "" {
			key = folder + "/" + base
		}
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate file %q", domain.ErrValidation, key))
			continue
		}
		seen[key] = struct{}{}
	}
	return errors.Join(errs...)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
