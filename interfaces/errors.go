package interfaces

import (
	"errors"
	"fmt"

	"github.com/sipfs/policy-escrow-backend/policy"
)

var (
	// ErrNotFound is returned when a user or asset does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when creating a user or asset whose key
	// is already occupied.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrAccessDenied is returned when a policy mismatch or an active
	// revocation prevents access.
	ErrAccessDenied = errors.New("access denied")

	// ErrReconstruction is returned when secret shares are insufficient or
	// inconsistent and the escrowed key cannot be recovered.
	ErrReconstruction = errors.New("secret reconstruction failed")
)

// ErrInvalidPolicyFormat is returned when a policy encoding is malformed or
// ambiguous. It is the policy package's sentinel re-exported so callers can
// match the whole taxonomy from one place.
var ErrInvalidPolicyFormat = policy.ErrInvalidFormat

// StoreErrorKind classifies failures reported by a KVStore implementation.
// Retry policy dispatches on the kind, never on error text.
type StoreErrorKind int

const (
	// KindInternal is a non-retryable storage failure.
	KindInternal StoreErrorKind = iota

	// KindConflict is an optimistic-concurrency conflict: another writer
	// committed to the same key between read and write.
	KindConflict

	// KindNoQuorum means not enough replicas responded to commit.
	KindNoQuorum

	// KindEndorsement means the replicas that responded disagreed and the
	// write was not endorsed.
	KindEndorsement

	// KindUnavailable means the store could not be reached at all.
	KindUnavailable
)

// String returns the kind name.
func (k StoreErrorKind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNoQuorum:
		return "no-quorum"
	case KindEndorsement:
		return "endorsement"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Transient reports whether an operation failing with this kind may succeed
// when retried against the same store.
func (k StoreErrorKind) Transient() bool {
	switch k {
	case KindConflict, KindNoQuorum, KindEndorsement, KindUnavailable:
		return true
	default:
		return false
	}
}

// StoreError is the structured failure a KVStore reports.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Key  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s %q: %s: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("store %s %q: %s", e.Op, e.Key, e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError for op on key.
func NewStoreError(kind StoreErrorKind, op, key string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Key: key, Err: err}
}

// IsTransient reports whether err is a retry-eligible store failure.
func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind.Transient()
}

// FatalLedgerError wraps a transient failure that outlived the retry budget,
// or a non-retryable failure, recording how many attempts were made.
type FatalLedgerError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *FatalLedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *FatalLedgerError) Unwrap() error { return e.Err }
