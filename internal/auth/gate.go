package auth

import (
	"context"
	"fmt"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/cipherstudio/sandbox-backend/internal/auth/domain"
	"github.com/cipherstudio/sandbox-backend/internal/logging"
	pdomain "github.com/cipherstudio/sandbox-backend/internal/projects/domain"
)

// TokenParser verifies locally issued session tokens.
type TokenParser interface {
	Parse(raw string) (int64, error)
}

// FirebaseVerifier is satisfied by *fbauth.Client.
type FirebaseVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseUserSyncer maps a Firebase identity to a local account.
type FirebaseUserSyncer interface {
	SyncFirebaseUser(ctx context.Context, uid, email, displayName string) (*domain.User, error)
}

// Gate turns a bearer token into a caller id.
type Gate struct {
	tokens   TokenParser
	firebase FirebaseVerifier
	users    FirebaseUserSyncer
}

func NewGate(tokens TokenParser) *Gate {
	return &Gate{tokens: tokens}
}

// WithFirebase also accepts Firebase ID tokens.
func (g *Gate) WithFirebase(verifier FirebaseVerifier, users FirebaseUserSyncer) *Gate {
	g.firebase = verifier
	g.users = users
	return g
}

// Authenticate resolves raw to a user id. Local tokens are tried first.
func (g *Gate) Authenticate(ctx context.Context, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrUnauthenticated
	}

	id, err := g.tokens.Parse(raw)
	if err == nil {
		return id, nil
	}
	if g.firebase == nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	decoded, ferr := g.firebase.VerifyIDToken(ctx, raw)
	if ferr != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, ferr)
	}

	// An unverified email must never match an existing local account.
	var email string
	if verified, _ := decoded.Claims["email_verified"].(bool); verified {
		email, _ = decoded.Claims["email"].(string)
	}
	name, _ := decoded.Claims["name"].(string)
	user, err := g.users.SyncFirebaseUser(ctx, decoded.UID, email, name)
	if err != nil {
		logging.FromContext(ctx).Error("firebase user sync failed", "firebase_uid", decoded.UID, "error", err)
		return 0, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	return user.ID, nil
}

// AuthorizeRead allows the owner, and anyone holding the id of an anonymous
// project.
func AuthorizeRead(p *pdomain.Project, callerID *int64) error {
	if p.IsAnonymous() {
		return nil
	}
	return AuthorizeWrite(p, callerID)
}

// AuthorizeWrite allows only the owner. Anonymous projects are read-only.
func AuthorizeWrite(p *pdomain.Project, callerID *int64) error {
	if callerID != nil && p.OwnedBy(*callerID) {
		return nil
	}
	return pdomain.ErrForbidden
}
