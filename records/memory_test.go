package records

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

func TestMemoryStore_Downloads(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	count, err := s.IncrementDownload(ctx, interfaces.DownloadRecord{AssetID: "a1", Username: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = s.IncrementDownload(ctx, interfaces.DownloadRecord{AssetID: "a1", Username: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = s.IncrementDownload(ctx, interfaces.DownloadRecord{AssetID: "a1", Username: "u2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	total, err := s.DownloadCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = s.DownloadCount(ctx, "untouched")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStore_Notifications(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.Notify(ctx, interfaces.Notification{
			ID:        fmt.Sprintf("n%d", i),
			AssetID:   "a1",
			Message:   fmt.Sprintf("release %d", i),
			Uploader:  "owner1",
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	got, err := s.Notifications(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "n4", got[0].ID, "newest first")
	assert.Equal(t, "n2", got[2].ID)

	all, err := s.Notifications(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_, err := s.IncrementDownload(ctx, interfaces.DownloadRecord{AssetID: "a1", Username: "u1"})
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	total, err := s.DownloadCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IncrementDownload(ctx, interfaces.DownloadRecord{AssetID: "a1", Username: "u1"})
	assert.ErrorIs(t, err, context.Canceled)

	err = s.Notify(ctx, interfaces.Notification{ID: "n1"})
	assert.ErrorIs(t, err, context.Canceled)
}
