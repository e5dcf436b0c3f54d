package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "wishwall:ratelimit"

// recordScript prunes, counts and appends in one round trip. Scores are unix milliseconds.
// Returns {allowed, count, oldestMs}.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = now
local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if head[2] then
  oldest = tonumber(head[2])
end

if count >= max then
  return {0, count, oldest}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, count + 1, oldest}
`)

// RedisWindowStore shares windows between API instances using one sorted set per key.
type RedisWindowStore struct {
	client redis.Scripter
	prefix string
}

var _ WindowStore = (*RedisWindowStore)(nil)

// RedisStoreOption customises a RedisWindowStore.
type RedisStoreOption func(*RedisWindowStore)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisWindowStore) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

// NewRedisWindowStore constructs a store on top of any go-redis client.
func NewRedisWindowStore(client redis.Scripter, opts ...RedisStoreOption) (*RedisWindowStore, error) {
	if client == nil {
		return nil, errors.New("guard: redis client is required")
	}
	s := &RedisWindowStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Record implements WindowStore.
func (s *RedisWindowStore) Record(ctx context.Context, key string, now time.Time, limit Limit) (WindowState, error) {
	limit = limit.normalized()
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, ulid.Make().String())

	res, err := recordScript.Run(ctx, s.client,
		[]string{s.prefix + ":" + key},
		nowMs, limit.Window.Milliseconds(), limit.MaxEvents, member,
	).Int64Slice()
	if err != nil {
		return WindowState{}, fmt.Errorf("guard: redis record: %w", err)
	}
	if len(res) != 3 {
		return WindowState{}, fmt.Errorf("guard: redis record: unexpected reply length %d", len(res))
	}
	return WindowState{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Oldest:  time.UnixMilli(res[2]),
	}, nil
}

// Prune implements WindowStore. Redis expires idle keys on its own.
func (s *RedisWindowStore) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}
