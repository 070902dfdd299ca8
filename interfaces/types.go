package interfaces

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentRef is a 32-byte SHA-256 hash referencing stored ciphertext.
type ContentRef [32]byte

// NewContentRefFromBytes creates a content ref from raw bytes.
func NewContentRefFromBytes(source []byte) (ContentRef, error) {
	if len(source) != 32 {
		return ContentRef{}, errors.New("invalid ContentRef conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return ContentRef(hash), nil
}

// NewContentRefFromHex parses a hex content ref, accepting an optional 0x prefix.
func NewContentRefFromHex(source string) (ContentRef, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentRef{}, errors.New("invalid content ref length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentRef{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ContentRef(hash), nil
}

// ComputeRef calculates the content ref of data.
func ComputeRef(data []byte) ContentRef {
	hash := sha256.Sum256(data)
	return ContentRef(hash)
}

// String returns hex representation.
func (r ContentRef) String() string {
	return hex.EncodeToString(r[:])
}

// Bytes returns the raw 32-byte hash.
func (r ContentRef) Bytes() []byte {
	return r[:]
}

// Equal compares two content refs.
func (r ContentRef) Equal(other ContentRef) bool {
	return bytes.Equal(r[:], other[:])
}

// IsZero reports whether the ref is unset, which terminates a version chain.
func (r ContentRef) IsZero() bool {
	return r == ContentRef{}
}

// Role distinguishes owners, who release assets, from requesters, who ask
// for access to them.
type Role string

const (
	RoleOwner     Role = "Data Owner"
	RoleRequester Role = "Data Requester"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleRequester
}

// Identity is an authenticated caller as supplied by the identity port.
// How the credential was issued is out of scope; by the time an Identity
// exists the username has been verified.
type Identity struct {
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	PublicKey string `json:"publicKey,omitempty"`
}
