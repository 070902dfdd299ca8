package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipfs/policy-escrow-backend/interfaces"
	"github.com/sipfs/policy-escrow-backend/kvstore"
)

var testIdentity = interfaces.Identity{
	Username:  "alice",
	Role:      interfaces.RoleRequester,
	PublicKey: "pk-alice",
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), "policy-escrow")

	token, err := svc.Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, got)
}

func TestTokenExpired(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), "policy-escrow")

	token, err := svc.Issue(testIdentity, -time.Minute)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWrongKey(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), "policy-escrow")
	other := NewTokenService([]byte("different-key"), "policy-escrow")

	token, err := svc.Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	svc := NewTokenService([]byte("test-signing-key"), "policy-escrow")

	var gotIdentity interfaces.Identity
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		require.True(t, ok)
		gotIdentity = id
		w.WriteHeader(http.StatusNoContent)
	}))

	// Valid token.
	token, err := svc.Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testIdentity, gotIdentity)

	// Missing header.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCredentialStore(t *testing.T) {
	s := NewCredentialStore(kvstore.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "alice", "hunter2hunter2"))

	err := s.Register(ctx, "alice", "other-password")
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)

	assert.NoError(t, s.Authenticate(ctx, "alice", "hunter2hunter2"))
	assert.ErrorIs(t, s.Authenticate(ctx, "alice", "wrong"), interfaces.ErrAccessDenied)
	assert.ErrorIs(t, s.Authenticate(ctx, "bob", "hunter2hunter2"), interfaces.ErrNotFound)

	assert.Error(t, s.Register(ctx, "", "pw"))
}
