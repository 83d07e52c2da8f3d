package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crm/internal/ratelimit/models"
)

// allowScript increments the window counter, starts the window expiry on the
// first hit and returns the count with the remaining TTL in milliseconds.
var allowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares fixed windows across instances.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	vals, err := allowScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit window %s: %w", key, err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("rate limit window %s: unexpected reply %v", key, vals)
	}
	resetAt := s.now().Add(time.Duration(vals[1]) * time.Millisecond)
	return models.NewResult(int(vals[0]), limit, resetAt), nil
}
