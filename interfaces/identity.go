package interfaces

import "time"

// TokenIssuer mints a bearer credential for an identity. Enrollment and CA
// protocols live outside this system; the issuer only encodes an already
// verified identity.
type TokenIssuer interface {
	Issue(id Identity, ttl time.Duration) (string, error)
}

// TokenVerifier authenticates a bearer credential back into an Identity.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}
