// Package identity implements the identity port: password-credentialed
// registration, JWT bearer tokens, and HTTP middleware that resolves a
// token back to an authenticated username. Enrollment infrastructure (CA,
// wallets) is out of scope; by the time a token exists the identity has
// been verified against its stored password hash.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// ErrInvalidToken is returned for any token that fails verification,
// expired tokens included.
var ErrInvalidToken = errors.New("invalid token")

// Claims carry the authenticated identity inside the JWT.
type Claims struct {
	Username  string          `json:"username"`
	Role      interfaces.Role `json:"role"`
	PublicKey string          `json:"publicKey,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens. It implements
// both interfaces.TokenIssuer and interfaces.TokenVerifier.
type TokenService struct {
	signingKey []byte
	issuer     string
}

// NewTokenService creates a token service signing with signingKey.
func NewTokenService(signingKey []byte, issuer string) *TokenService {
	return &TokenService{signingKey: signingKey, issuer: issuer}
}

// Issue mints a token for id, valid for ttl.
func (s *TokenService) Issue(id interfaces.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username:  id.Username,
		Role:      id.Role,
		PublicKey: id.PublicKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify authenticates a token string back into an Identity.
func (s *TokenService) Verify(tokenString string) (interfaces.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return interfaces.Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Username == "" {
		return interfaces.Identity{}, ErrInvalidToken
	}

	return interfaces.Identity{
		Username:  claims.Username,
		Role:      claims.Role,
		PublicKey: claims.PublicKey,
	}, nil
}
