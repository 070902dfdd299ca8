package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sipfs/policy-escrow-backend/cryptoutils"
	"github.com/sipfs/policy-escrow-backend/interfaces"
)

const credentialKeyPrefix = "cred/"

type credentialRecord struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CredentialStore keeps password hashes in the key-value store, separate
// from the ledger's user records: the ledger holds the policy identity,
// this holds the login credential.
type CredentialStore struct {
	store interfaces.KVStore
}

// NewCredentialStore creates a credential store over store.
func NewCredentialStore(store interfaces.KVStore) *CredentialStore {
	return &CredentialStore{store: store}
}

// Register hashes and stores the password for username. Fails with
// ErrAlreadyExists when a credential is already registered.
func (s *CredentialStore) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password must not be empty")
	}

	hash, err := cryptoutils.HashPassword(password)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(credentialRecord{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	key := credentialKeyPrefix + username
	if _, err := s.store.Get(ctx, key); err == nil {
		return fmt.Errorf("credential %s: %w", username, interfaces.ErrAlreadyExists)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return err
	}

	_, err = s.store.Put(ctx, key, raw, 0)
	return err
}

// Authenticate verifies the password for username. Fails with ErrNotFound
// when no credential exists and ErrAccessDenied on a wrong password.
func (s *CredentialStore) Authenticate(ctx context.Context, username, password string) error {
	entry, err := s.store.Get(ctx, credentialKeyPrefix+username)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("credential %s: %w", username, interfaces.ErrNotFound)
	}
	if err != nil {
		return err
	}

	var rec credentialRecord
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return fmt.Errorf("undecodable credential record for %s: %w", username, err)
	}

	if !cryptoutils.VerifyPassword(rec.PasswordHash, password) {
		return interfaces.ErrAccessDenied
	}
	return nil
}
