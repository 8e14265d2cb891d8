package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"supmap-tracking/internal/tracking"
)

var ErrNotFound = errors.New("snapshot not found")

// writeTimeout bounds a single cache write made on behalf of a session observer.
const writeTimeout = 2 * time.Second

type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl, logger: logger}
}

func (r *RedisSnapshotCache) SetSnapshot(ctx context.Context, snap tracking.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}
	key := formatKey(snap.SessionID)
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *RedisSnapshotCache) GetSnapshot(ctx context.Context, sessionID string) (*tracking.Snapshot, error) {
	key := formatKey(sessionID)
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	var snap tracking.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("unmarshalling snapshot: %w", err)
	}
	return &snap, nil
}

// Observe is a tracking.Observer writing every published snapshot. Failures
// are logged; the cache is a convenience for other readers.
func (r *RedisSnapshotCache) Observe(snap tracking.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.SetSnapshot(ctx, snap); err != nil {
		r.logger.Warn("failed to cache snapshot", "sessionID", snap.SessionID, "error", err)
	}
}

func formatKey(sessionID string) string {
	return fmt.Sprintf("tracking:session:%s", sessionID)
}
