// Package escrow implements threshold secret sharing for content access
// keys. An AccessKey is split into n shares, one per hashed policy
// attribute of the asset being released, and any t of them reconstruct it.
// Fewer than t shares reveal nothing about the key; reconstruction from an
// insufficient or mixed set is detected through a commitment to the
// original secret rather than silently returning garbage.
package escrow

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// Share is one fragment of a split secret. For thresholds of two or more
// the layout is the Shamir share format: len(secret) bytes of y-values
// followed by the share's x-coordinate byte.
type Share []byte

// Commitment binds a set of shares to the secret they were split from.
// It is the SHA-256 digest of the secret and is safe to persist alongside
// the shares.
type Commitment []byte

// Commit computes the commitment for secret.
func Commit(secret []byte) Commitment {
	sum := sha256.Sum256(secret)
	return Commitment(sum[:])
}

// Verify reports whether candidate is the committed secret.
func (c Commitment) Verify(candidate []byte) bool {
	sum := sha256.Sum256(candidate)
	return bytes.Equal(c, sum[:])
}

// Hex returns the commitment in the hex form persisted on asset records.
func (c Commitment) Hex() string {
	return hex.EncodeToString(c)
}

// Split divides secret into parts shares with the given reconstruction
// threshold and returns them with the commitment to store next to them.
// Shares are returned in a stable order; callers pair share i with hashed
// attribute i and must preserve that pairing through storage.
//
// A threshold of one degenerates to plain copies of the secret, since any
// single share is then sufficient by definition.
func Split(secret []byte, parts, threshold int) ([]Share, Commitment, error) {
	if len(secret) == 0 {
		return nil, nil, errors.New("cannot split an empty secret")
	}
	if parts < threshold {
		return nil, nil, fmt.Errorf("parts (%d) must be at least threshold (%d)", parts, threshold)
	}
	if threshold < 1 {
		return nil, nil, errors.New("threshold must be at least 1")
	}
	if parts > 255 {
		return nil, nil, errors.New("parts must not exceed 255")
	}

	commitment := Commit(secret)

	if threshold == 1 {
		shares := make([]Share, parts)
		for i := range shares {
			shares[i] = append(Share(nil), secret...)
		}
		return shares, commitment, nil
	}

	raw, err := shamir.Split(secret, parts, threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split secret: %w", err)
	}

	shares := make([]Share, len(raw))
	for i, s := range raw {
		shares[i] = Share(s)
	}
	return shares, commitment, nil
}

// Reconstruct recovers the secret from shares and checks it against the
// commitment. It fails with interfaces.ErrReconstruction when fewer than
// the threshold of distinct valid shares are supplied, or when the shares
// do not all belong to the same split instance.
func Reconstruct(shares []Share, commitment Commitment) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares supplied", interfaces.ErrReconstruction)
	}
	if len(commitment) != sha256.Size {
		return nil, fmt.Errorf("%w: malformed commitment", interfaces.ErrReconstruction)
	}

	// Threshold-one splits store the secret directly in each share.
	if commitment.Verify(shares[0]) {
		return append([]byte(nil), shares[0]...), nil
	}

	distinct := dedupe(shares)
	if len(distinct) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct shares", interfaces.ErrReconstruction)
	}

	secret, err := shamir.Combine(distinct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrReconstruction, err)
	}

	// An under-threshold or mixed set combines into garbage; the commitment
	// is what catches it.
	if !commitment.Verify(secret) {
		return nil, fmt.Errorf("%w: shares are insufficient or inconsistent", interfaces.ErrReconstruction)
	}
	return secret, nil
}

// dedupe drops shares with duplicate x-coordinates, which would make the
// interpolation degenerate.
func dedupe(shares []Share) [][]byte {
	seen := make(map[byte]struct{}, len(shares))
	out := make([][]byte, 0, len(shares))
	for _, s := range shares {
		if len(s) < 2 {
			continue
		}
		x := s[len(s)-1]
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, []byte(s))
	}
	return out
}

// NewAccessKey generates a random 32-byte content access key.
func NewAccessKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate access key: %w", err)
	}
	return key, nil
}
