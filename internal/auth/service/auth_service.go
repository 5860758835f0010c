package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cipherstudio/sandbox-backend/internal/auth/domain"
	"github.com/cipherstudio/sandbox-backend/internal/auth/token"
	"github.com/cipherstudio/sandbox-backend/internal/logging"
)

const minPasswordLength = 6

// UserStore is the account persistence the service needs.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*domain.User, error)
	LinkFirebaseUID(ctx context.Context, id int64, uid string) error
	Update(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

type AuthService struct {
	userRepo UserStore
	tokens   *token.Issuer
	cost     int
	now      func() time.Time
}

func NewAuthService(userRepo UserStore, tokens *token.Issuer) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// Register creates an account and signs the caller in.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Session, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)

	switch {
	case req.FirstName == "" || req.LastName == "":
		return nil, fmt.Errorf("%w: first and last name are required", domain.ErrValidation)
	case !validEmail(req.Email):
		return nil, fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
	case len(req.Password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Mobile:       req.Mobile,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return s.session(user)
}

// Login checks the password and records the login time.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logging.FromContext(ctx).Warn("failed to record login", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}
	return s.session(user)
}

// Profile returns the account behind userID.
func (s *AuthService) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile updates user information
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, req domain.UpdateUserRequest) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Update fields if provided
	if req.FirstName != nil {
		if strings.TrimSpace(*req.FirstName) == "" {
			return nil, fmt.Errorf("%w: first name cannot be blank", domain.ErrValidation)
		}
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		if strings.TrimSpace(*req.LastName) == "" {
			return nil, fmt.Errorf("%w: last name cannot be blank", domain.ErrValidation)
		}
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Mobile != nil {
		user.Mobile = req.Mobile
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SyncFirebaseUser maps a Firebase identity to a local account, linking by
// email or creating the account on first use. email must be empty unless the
// identity provider verified it. An account already linked to another uid is
// never relinked.
func (s *AuthService) SyncFirebaseUser(ctx context.Context, uid, email, displayName string) (*domain.User, error) {
	user, err := s.userRepo.GetByFirebaseUID(ctx, uid)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	if email == "" {
		// Fallback email
		email = uid + "@firebase.local"
	}

	user, err = s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if user.FirebaseUID != nil && *user.FirebaseUID != uid {
			return nil, fmt.Errorf("%w: account is linked to another firebase identity", domain.ErrUnauthenticated)
		}
		if err := s.userRepo.LinkFirebaseUID(ctx, user.ID, uid); err != nil {
			return nil, err
		}
		user.FirebaseUID = &uid
		return user, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	first, last := splitName(displayName)
	user = &domain.User{
		Email:       email,
		FirstName:   first,
		LastName:    last,
		FirebaseUID: &uid,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("firebase user linked", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) session(user *domain.User) (*domain.Session, error) {
	tok, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Session{Token: tok, ExpiresAt: exp, User: user.Public()}, nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func splitName(displayName string) (string, string) {
	parts := strings.Fields(displayName)
	switch len(parts) {
	case 0:
		return "Firebase", "User"
	case 1:
		return parts[0], "-"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
