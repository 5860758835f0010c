package http

import (
	"context"

	"github.com/cipherstudio/sandbox-backend/internal/auth/domain"
)

// AccountService is what the handlers need from the auth service.
type AccountService interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.Session, error)
	Login(ctx context.Context, email, password string) (*domain.Session, error)
	Profile(ctx context.Context, userID int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID int64, req domain.UpdateUserRequest) (*domain.User, error)
}

type Handler struct {
	authService AccountService
}

func New(authService AccountService) *Handler {
	return &Handler{
		authService: authService,
	}
}

type registerReq struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Mobile    *string `json:"mobile,omitempty"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateProfileReq struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Mobile    *string `json:"mobile,omitempty"`
}
