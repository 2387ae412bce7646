package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsolidationLockKey builds redis keys guarding the one-active-run-per-
// (group, period) invariant.
func ConsolidationLockKey(groupID int64, periodRef string) string {
	return fmt.Sprintf("consol:group:%d:period:%s:lock", groupID, periodRef)
}

// ErrLockHeld indicates another process holds the critical section.
var ErrLockHeld = errors.New("lock already held")

// RunLocker serialises consolidation runs across processes via redis SETNX.
type RunLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLocker constructs a locker. TTL bounds how long a crashed run can
// keep the (group, period) pair blocked.
func NewRunLocker(client *redis.Client, ttl time.Duration) *RunLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RunLocker{client: client, ttl: ttl}
}

// Acquire takes the lock or returns ErrLockHeld.
func (l *RunLocker) Acquire(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return errors.New("run locker not initialised")
	}
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release frees the lock when the holder's token still matches; a lock taken
// over by another run after TTL expiry is left alone.
func (l *RunLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`
	return l.client.Eval(ctx, script, []string{key}, token).Err()
}
