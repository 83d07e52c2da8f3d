//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer backs the rate-limit window store in integration tests.
type RedisContainer struct {
	Container *tcredis.RedisContainer
	Addr      string
	Client    *redis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err, "redis connection string")
	opts, err := redis.ParseURL(url)
	require.NoError(t, err, "parse redis url")

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err(), "ping redis")

	// Shared by the Manager for the whole test binary; Ryuk reaps the container.
	return &RedisContainer{Container: container, Addr: opts.Addr, Client: client}
}

// FlushAll clears every window so suites start from zero counts.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
