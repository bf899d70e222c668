package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predictswipe/predictd/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const retryInterval = 50 * time.Millisecond

// defaultWaitRate is the per-second Wait rate used when none is configured.
// It has to leave room for one aggregation cycle's per-market reads to pass
// inside a single window, or the cycle's concurrency is lost to throttling.
const defaultWaitRate = 20

// RateLimiter implements domain.RateLimiter with a sorted-set sliding
// window evaluated atomically in Lua. The HTTP middleware throttles clients
// through it, and the snapshot aggregator throttles view calls against
// shared RPC endpoints.
type RateLimiter struct {
	rdb      *redis.Client
	window   *redis.Script
	waitRate int
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter backed by the given Client. waitRate
// is the per-second rate Wait enforces; values below 1 fall back to the
// default.
func NewRateLimiter(c *Client, waitRate int) *RateLimiter {
	if waitRate < 1 {
		waitRate = defaultWaitRate
	}
	return &RateLimiter{
		rdb:      c.Underlying(),
		window:   redis.NewScript(slidingWindowLua),
		waitRate: waitRate,
	}
}

// Allow reports whether one more request for key fits inside the window.
// An allowed request is counted immediately.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.window.Run(
		ctx,
		rl.rdb,
		[]string{"ratelimit:" + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(res))
	}
	return res[0] == 1, nil
}

// Wait blocks until one request for key is allowed at the configured
// per-second rate, or until the context ends. Callers that need other limits
// loop over Allow themselves.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		allowed, err := rl.Allow(ctx, key, rl.waitRate, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}
