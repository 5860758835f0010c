package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherstudio/sandbox-backend/internal/auth/domain"
	"github.com/cipherstudio/sandbox-backend/internal/auth/token"
	pdomain "github.com/cipherstudio/sandbox-backend/internal/projects/domain"
)

type stubVerifier struct {
	tokens map[string]*fbauth.Token
}

func (s stubVerifier) VerifyIDToken(_ context.Context, raw string) (*fbauth.Token, error) {
	if t, ok := s.tokens[raw]; ok {
		return t, nil
	}
	return nil, errors.New("bad firebase token")
}

type stubSyncer struct {
	calls  int
	emails []string
	err    error
}

func (s *stubSyncer) SyncFirebaseUser(_ context.Context, uid, email, _ string) (*domain.User, error) {
	s.calls++
	s.emails = append(s.emails, email)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.User{ID: 99, Email: email}, nil
}

func TestGate_LocalToken(t *testing.T) {
	issuer := token.NewIssuer("s", time.Hour)
	gate := NewGate(issuer)

	raw, _, err := issuer.Issue(7)
	require.NoError(t, err)

	id, err := gate.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = gate.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = gate.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGate_FirebaseFallback(t *testing.T) {
	syncer := &stubSyncer{}
	verifier := stubVerifier{tokens: map[string]*fbauth.Token{
		"fb-token": {UID: "fb-1", Claims: map[string]interface{}{"email": "x@example.com"}},
	}}
	gate := NewGate(token.NewIssuer("s", time.Hour)).WithFirebase(verifier, syncer)

	id, err := gate.Authenticate(context.Background(), "fb-token")
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
	assert.Equal(t, 1, syncer.calls)

	_, err = gate.Authenticate(context.Background(), "other")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGate_FirebaseEmailMustBeVerified(t *testing.T) {
	syncer := &stubSyncer{}
	verifier := stubVerifier{tokens: map[string]*fbauth.Token{
		"unverified": {UID: "fb-mallory", Claims: map[string]interface{}{"email": "ada@example.com", "email_verified": false}},
		"missing":    {UID: "fb-mallory", Claims: map[string]interface{}{"email": "ada@example.com"}},
		"verified":   {UID: "fb-ada", Claims: map[string]interface{}{"email": "ada@example.com", "email_verified": true}},
	}}
	gate := NewGate(token.NewIssuer("s", time.Hour)).WithFirebase(verifier, syncer)

	for _, raw := range []string{"unverified", "missing", "verified"} {
		_, err := gate.Authenticate(context.Background(), raw)
		require.NoError(t, err, raw)
	}
	assert.Equal(t, []string{"", "", "ada@example.com"}, syncer.emails)
}

func TestGate_FirebaseErrorsAreUnauthenticated(t *testing.T) {
	syncer := &stubSyncer{err: errors.New("db down")}
	verifier := stubVerifier{tokens: map[string]*fbauth.Token{
		"fb-token": {UID: "fb-1", Claims: map[string]interface{}{}},
	}}
	gate := NewGate(token.NewIssuer("s", time.Hour)).WithFirebase(verifier, syncer)

	_, err := gate.Authenticate(context.Background(), "fb-token")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.ErrorIs(t, err, syncer.err)

	_, err = gate.Authenticate(context.Background(), "unknown")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Contains(t, err.Error(), "bad firebase token")
}

func TestAuthorize(t *testing.T) {
	owner := int64(1)
	stranger := int64(2)
	owned := &pdomain.Project{OwnerID: &owner}
	anon := &pdomain.Project{}

	assert.NoError(t, AuthorizeRead(owned, &owner))
	assert.ErrorIs(t, AuthorizeRead(owned, &stranger), pdomain.ErrForbidden)
	assert.ErrorIs(t, AuthorizeRead(owned, nil), pdomain.ErrForbidden)

	assert.NoError(t, AuthorizeRead(anon, nil))
	assert.NoError(t, AuthorizeRead(anon, &stranger))
	assert.ErrorIs(t, AuthorizeWrite(anon, &stranger), pdomain.ErrForbidden)

	assert.NoError(t, AuthorizeWrite(owned, &owner))
	assert.ErrorIs(t, AuthorizeWrite(owned, &stranger), pdomain.ErrForbidden)
}

func TestCallerID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Nil(t, CallerID(c))

	SetCaller(c, 5)
	got := CallerID(c)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), *got)
}
