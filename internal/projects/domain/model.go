package domain

import (
	"fmt"
	"strings"
	"time"
)

// Project is a saved sandbox project. StorageContainer names its blob
// namespace and never changes after creation.
type Project struct {
	ID               string    `json:"id"`
	Slug             string    `json:"slug"`
	OwnerID          *int64    `json:"owner_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	StorageContainer string    `json:"storage_container"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsAnonymous reports whether the project was saved without an owner.
func (p *Project) IsAnonymous() bool {
	return p.OwnerID == nil
}

// OwnedBy reports whether callerID owns the project.
func (p *Project) OwnedBy(callerID int64) bool {
	return p.OwnerID != nil && *p.OwnerID == callerID
}

type FileKind string

const (
	KindFile   FileKind = "file"
	KindFolder FileKind = "folder"
)

// FileRecord describes one file or folder of a project. File records point at
// a blob by key; folder records never do.
type FileRecord struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	ParentID    *string   `json:"parent_id"`
	Name        string    `json:"name"`
	Kind        FileKind  `json:"type"`
	BlobKey     *string   `json:"blob_key,omitempty"`
	Language    string    `json:"language,omitempty"`
	SizeInBytes *int64    `json:"size_in_bytes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate enforces the file/folder shape rules before a record is written.
func (f *FileRecord) Validate() error {
	if strings.TrimSpace(f.ProjectID) == "" {
		return fmt.Errorf("%w: project id required", ErrValidation)
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}

	switch f.Kind {
	case KindFile:
		if f.BlobKey == nil || strings.TrimSpace(*f.BlobKey) == "" {
			return fmt.Errorf("%w: blob key required for file %q", ErrValidation, f.Name)
		}
		if f.SizeInBytes == nil {
			return fmt.Errorf("%w: size required for file %q", ErrValidation, f.Name)
		}
		if *f.SizeInBytes < 0 {
			return fmt.Errorf("%w: negative size for file %q", ErrValidation, f.Name)
		}
	case KindFolder:
		if f.BlobKey != nil || f.SizeInBytes != nil {
			return fmt.Errorf("%w: folder %q cannot reference a blob", ErrValidation, f.Name)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, f.Kind)
	}
	return nil
}

// FileInput is one in-memory file handed to a save.
type FileInput struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// LoadedFile is a file record joined with its content. Path is the
// path-relative name ("folder/name" for contained files).
type LoadedFile struct {
	FileRecord
	Path    string `json:"path"`
	Content string `json:"content"`
	// Missing is set when the blob could not be read and Content is a placeholder.
	Missing bool `json:"missing,omitempty"`
}

// ProjectFiles is the result of loading a project.
type ProjectFiles struct {
	Project *Project     `json:"project"`
	Files   []LoadedFile `json:"files"`
}

// SaveRequest carries the inputs of a save. OwnerID nil means anonymous.
type SaveRequest struct {
	OwnerID     *int64
	Name        string
	Description string
	Files       []FileInput
}

// UpdateRequest changes project metadata and optionally rewrites files.
type UpdateRequest struct {
	Name        *string
	Description *string
	Files       []FileInput
}
