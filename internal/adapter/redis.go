package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces all SDK keys in Redis.
// Example: "mimir:rulesets", "mimir:id_list::employees".
const keyPrefix = "mimir"

// timeSuffix stores the companion timestamp for each value key.
const timeSuffix = ":time"

// Compile-time check that RedisAdapter satisfies the DataAdapter contract.
var _ DataAdapter = (*RedisAdapter)(nil)

// RedisAdapter is a DataAdapter backed by Redis, suitable for sharing one
// control-plane download across many SDK processes: one instance fetches
// from the network and Sets, the rest bootstrap from Get.
type RedisAdapter struct {
	client *redis.Client

	// pollKeys marks the keys this adapter serves as a polling source.
	pollKeys map[string]bool
}

// NewRedisAdapter wraps an existing client. The caller owns client
// configuration (pooling, TLS, timeouts); the adapter owns key layout.
func NewRedisAdapter(client *redis.Client, pollRulesets bool) *RedisAdapter {
	if client == nil {
		panic("adapter: redis client cannot be nil")
	}

	return &RedisAdapter{
		client:   client,
		pollKeys: map[string]bool{KeyRulesets: pollRulesets},
	}
}

// NewRedisAdapterFromAddr dials Redis and fails fast if it is unreachable.
func NewRedisAdapterFromAddr(ctx context.Context, addr string, pollRulesets bool) (*RedisAdapter, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		// Timeouts prevent cascading failures
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(initCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisAdapter(client, pollRulesets), nil
}

// Initialize verifies connectivity.
func (a *RedisAdapter) Initialize(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis adapter ping failed: %w", err)
	}
	return nil
}

// Shutdown closes the underlying client.
func (a *RedisAdapter) Shutdown(_ context.Context) error {
	return a.client.Close()
}

// Get implements DataAdapter. The value and its timestamp live under two
// sibling keys; a missing value key reads as empty with no error.
func (a *RedisAdapter) Get(ctx context.Context, key string) (string, int64, error) {
	value, err := a.client.Get(ctx, namespaced(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %q from redis: %w", key, err)
	}

	updatedAt, err := a.client.Get(ctx, namespaced(key)+timeSuffix).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, fmt.Errorf("failed to read timestamp for %q from redis: %w", key, err)
	}

	return value, updatedAt, nil
}

// Set implements DataAdapter. Both keys are written in one pipeline so
// readers never observe a value without its timestamp.
func (a *RedisAdapter) Set(ctx context.Context, key, value string, updatedAt int64) error {
	pipe := a.client.TxPipeline()
	pipe.Set(ctx, namespaced(key), value, 0)
	pipe.Set(ctx, namespaced(key)+timeSuffix, updatedAt, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write %q to redis: %w", key, err)
	}
	return nil
}

// SupportsPollingUpdatesFor implements DataAdapter.
func (a *RedisAdapter) SupportsPollingUpdatesFor(key string) bool {
	return a.pollKeys[key]
}

func namespaced(key string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, key)
}
