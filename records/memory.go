// Package records implements the auxiliary-record port: download tallies
// and notifications. These are best-effort side records next to the
// ledger, with an in-memory implementation for tests and single-node runs
// and a Redis implementation for shared deployments.
package records

import (
	"context"
	"sync"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

// MemoryStore is an in-memory RecordStore.
type MemoryStore struct {
	mu            sync.Mutex
	downloads     map[string]map[string]int64
	notifications []interfaces.Notification
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		downloads: make(map[string]map[string]int64),
	}
}

// IncrementDownload bumps the tally for (assetID, username).
func (s *MemoryStore) IncrementDownload(ctx context.Context, rec interfaces.DownloadRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	perUser, ok := s.downloads[rec.AssetID]
	if !ok {
		perUser = make(map[string]int64)
		s.downloads[rec.AssetID] = perUser
	}
	perUser[rec.Username]++
	return perUser[rec.Username], nil
}

// DownloadCount sums all requesters' tallies for assetID.
func (s *MemoryStore) DownloadCount(ctx context.Context, assetID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, count := range s.downloads[assetID] {
		total += count
	}
	return total, nil
}

// Notify stores a notification.
func (s *MemoryStore) Notify(ctx context.Context, n interfaces.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first.
	s.notifications = append([]interfaces.Notification{n}, s.notifications...)
	return nil
}

// Notifications returns up to limit most recent notifications.
func (s *MemoryStore) Notifications(ctx context.Context, limit int) ([]interfaces.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.notifications) {
		limit = len(s.notifications)
	}
	out := make([]interfaces.Notification, limit)
	copy(out, s.notifications[:limit])
	return out, nil
}
