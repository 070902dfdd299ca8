package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

type contextKey struct{}

// FromContext returns the authenticated identity stored by Middleware.
func FromContext(ctx context.Context) (interfaces.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(interfaces.Identity)
	return id, ok
}

// WithIdentity returns a context carrying id, mainly for handler tests.
func WithIdentity(ctx context.Context, id interfaces.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Middleware authenticates the Authorization bearer token and injects the
// resulting identity into the request context. Requests without a valid
// token get 401.
func Middleware(verifier interfaces.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
