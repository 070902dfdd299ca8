package records

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

const (
	// Redis key prefix for per-asset download tallies.
	downloadKeyPrefix = "escrow:dl:"

	// Redis list holding the notification feed, newest first.
	notificationsKey = "escrow:notifications"

	// Feed entries beyond this are trimmed away.
	notificationsCap = 1000
)

// RedisStore is a Redis-backed RecordStore for deployments where several
// service instances share the download and notification state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed record store from a redis URL.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// IncrementDownload bumps the per-user field in the asset's tally hash.
func (s *RedisStore) IncrementDownload(ctx context.Context, rec interfaces.DownloadRecord) (int64, error) {
	count, err := s.client.HIncrBy(ctx, downloadKeyPrefix+rec.AssetID, rec.Username, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment download tally: %w", err)
	}
	return count, nil
}

// DownloadCount sums all per-user fields of the asset's tally hash.
func (s *RedisStore) DownloadCount(ctx context.Context, assetID string) (int64, error) {
	fields, err := s.client.HGetAll(ctx, downloadKeyPrefix+assetID).Result()
	if err != nil {
		return 0, fmt.Errorf("read download tallies: %w", err)
	}

	var total int64
	for _, raw := range fields {
		var n int64
		if _, err := fmt.Sscan(raw, &n); err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

// Notify pushes a notification onto the feed and trims it to the cap.
func (s *RedisStore) Notify(ctx context.Context, n interfaces.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, notificationsKey, raw)
	pipe.LTrim(ctx, notificationsKey, 0, notificationsCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// Notifications returns up to limit most recent notifications.
func (s *RedisStore) Notifications(ctx context.Context, limit int) ([]interfaces.Notification, error) {
	if limit <= 0 || limit > notificationsCap {
		limit = notificationsCap
	}

	raws, err := s.client.LRange(ctx, notificationsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}

	out := make([]interfaces.Notification, 0, len(raws))
	for _, raw := range raws {
		var n interfaces.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			// A single undecodable entry must not hide the rest.
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Health checks the Redis connection.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
