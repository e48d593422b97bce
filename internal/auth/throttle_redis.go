package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// recordFailureScript increments the counter and, at the limit, swaps it for
// a lock key. KEYS: counter, lock. ARGV: max failures, lock ms.
var recordFailureScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
if n >= tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// RedisThrottle shares lockout state between processes. Lock expiry is left
// to key TTLs.
type RedisThrottle struct {
	client redis.UniversalClient
	cfg    ThrottleConfig
	prefix string
}

// NewRedisThrottle constructs a RedisThrottle.
func NewRedisThrottle(client redis.UniversalClient, cfg ThrottleConfig) *RedisThrottle {
	return &RedisThrottle{client: client, cfg: cfg.withDefaults(), prefix: "nusapos:login"}
}

func (t *RedisThrottle) keys(identity, origin string) (counter, lock string) {
	key := throttleKey(identity, origin)
	return t.prefix + ":fail:" + key, t.prefix + ":lock:" + key
}

// IsLocked reports whether a lock key exists for the pair.
func (t *RedisThrottle) IsLocked(ctx context.Context, identity, origin string) (bool, error) {
	_, lock := t.keys(identity, origin)
	n, err := t.client.Exists(ctx, lock).Result()
	if err != nil {
		return false, fmt.Errorf("throttle: exists: %w", err)
	}
	return n > 0, nil
}

// RecordFailure counts one failure atomically.
func (t *RedisThrottle) RecordFailure(ctx context.Context, identity, origin string) error {
	counter, lock := t.keys(identity, origin)
	err := recordFailureScript.Run(ctx, t.client, []string{counter, lock},
		t.cfg.MaxFailures, t.cfg.LockDuration.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("throttle: record failure: %w", err)
	}
	return nil
}

// Clear deletes counter and lock for the pair.
func (t *RedisThrottle) Clear(ctx context.Context, identity, origin string) error {
	counter, lock := t.keys(identity, origin)
	if err := t.client.Del(ctx, counter, lock).Err(); err != nil {
		return fmt.Errorf("throttle: clear: %w", err)
	}
	return nil
}

var _ Throttle = (*RedisThrottle)(nil)
