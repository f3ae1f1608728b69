package indicator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/your-org/signal-sim-bot/pkg/logger"
)

// RedisCache stores snapshots in Redis so multiple runner processes sharing
// one simulation id see the same per-day indicator values. Entries carry no
// TTL; Clear removes them at end-of-day.
type RedisCache struct {
	client *goredis.Client
	prefix string
	keySet string
}

// NewRedisCache connects to Redis and returns a cache namespaced by simulationID.
func NewRedisCache(addr, password string, db int, simulationID string) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := simulationID + ":indicator:"
	return &RedisCache{
		client: client,
		prefix: prefix,
		keySet: prefix + "keys",
	}, nil
}

// Get fetches a cached snapshot. Redis errors are logged and treated as a miss.
func (c *RedisCache) Get(key string) (Snapshot, bool) {
	ctx := context.Background()
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == goredis.Nil {
		return Snapshot{}, false
	}
	if err != nil {
		logger.Warnf("Redis cache get failed for %s: %v", key, err)
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logger.Warnf("Redis cache held malformed snapshot for %s: %v", key, err)
		return Snapshot{}, false
	}
	return snap, true
}

// Set stores a snapshot and tracks its key for Clear.
func (c *RedisCache) Set(key string, snap Snapshot) {
	ctx := context.Background()
	raw, err := json.Marshal(snap)
	if err != nil {
		logger.Errorf("Failed to marshal snapshot for %s: %v", key, err)
		return
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.prefix+key, raw, 0)
	pipe.SAdd(ctx, c.keySet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnf("Redis cache set failed for %s: %v", key, err)
	}
}

// Clear removes every tracked snapshot key.
func (c *RedisCache) Clear() {
	ctx := context.Background()
	keys, err := c.client.SMembers(ctx, c.keySet).Result()
	if err != nil {
		logger.Warnf("Redis cache clear failed listing keys: %v", err)
		return
	}
	full := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		full = append(full, c.prefix+k)
	}
	full = append(full, c.keySet)
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		logger.Warnf("Redis cache clear failed deleting keys: %v", err)
	}
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
