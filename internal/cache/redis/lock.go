package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/predictswipe/predictd/internal/domain"
)

// unlockScript releases a lock only when the stored token matches, so one
// holder cannot free a lock that has since expired and been re-acquired.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX plus a TTL. The
// betting and market-creation workflows take a per-account lock through it
// so a shared signer key is never driving two transaction sequences at once.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:    c.Underlying(),
		unlock: redis.NewScript(unlockScript),
	}
}

// Acquire takes the lock for key, or returns domain.ErrLockHeld when another
// party holds it. The returned release function is idempotent and must be
// called when the protected work finishes; the TTL bounds the damage if the
// process dies first.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	name := "lock:" + key

	ok, err := lm.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var done bool
	return func() {
		if done {
			return
		}
		done = true

		// The caller's context may already be cancelled when it releases.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlock.Run(rctx, lm.rdb, []string{name}, token).Err()
	}, nil
}
