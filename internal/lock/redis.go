package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lock key only when it still carries the
// caller's token, so a worker can never release a lock that expired and
// was re-acquired by someone else.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisLocker implements Locker on a single Redis instance using
// SET NX PX with a per-handle random token.  This matches the contract
// the rest of the system expects from a Redlock-style service: acquire
// a named exclusive lock with a deadline that survives client crashes.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker returns a Locker backed by the given Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the named lock with SET NX PX.  A false reply means the
// key exists and the lock is held elsewhere; any transport error is
// reported as ErrUnavailable so callers can classify it as retryable.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Handle{Key: key, Token: token}, nil
}

// Release runs the compare-and-delete script.  An already-expired
// handle releases zero keys, which is fine: the TTL did the work.
func (l *RedisLocker) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if err := l.client.Eval(ctx, releaseScript, []string{h.Key}, h.Token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
