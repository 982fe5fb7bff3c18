// Package testsupport provides helpers for integration tests that need
// real backing services.
package testsupport

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/mimir/internal/adapter"
)

// RedisContainer holds references to the ephemeral Redis instance.
type RedisContainer struct {
	Container testcontainers.Container

	// Adapter is the wrapped data adapter under test.
	Adapter *adapter.RedisAdapter
}

// Terminate cleans up the container and closes the client.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Adapter.Shutdown(ctx)
	return c.Container.Terminate(ctx)
}

// StartRedisContainer spins up a Redis 7-alpine container and wires a
// RedisAdapter to it.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	// 1. Start Container
	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	// 2. Get Connection String
	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	// 3. Wire the adapter under test
	redisAdapter, err := adapter.NewRedisAdapterFromAddr(ctx, endpoint, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis adapter: %w", err)
	}

	return &RedisContainer{
		Container: redisContainer,
		Adapter:   redisAdapter,
	}, nil
}
