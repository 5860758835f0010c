package http

import (
	"context"

	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
)

// Projects is the service surface the handlers call.
type Projects interface {
	SaveProject(ctx context.Context, req domain.SaveRequest) (*domain.Project, error)
	CreateProject(ctx context.Context, ownerID int64, name, description string) (*domain.Project, error)
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context, ownerID int64) ([]domain.Project, error)
	LoadProjectFiles(ctx context.Context, projectID string, callerID *int64) (*domain.ProjectFiles, error)
	UpdateProject(ctx context.Context, projectID string, callerID *int64, req domain.UpdateRequest) (*domain.Project, error)
	DeleteProject(ctx context.Context, projectID string, callerID *int64) error
}

// Handler bundles the dependencies for projects HTTP endpoints.
type Handler struct {
	svc Projects
}

func New(svc Projects) *Handler {
	return &Handler{svc: svc}
}

type saveReq struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Files       []domain.FileInput `json:"files"`
}

type createReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateReq struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Files       []domain.FileInput `json:"files"`
}
