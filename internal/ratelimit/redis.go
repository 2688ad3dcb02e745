package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	id "beacon/pkg/domain"
	dErrors "beacon/pkg/domain-errors"
)

// window is the admission accounting period for the Redis limiter.
const window = time.Minute

// retryPoll bounds how often a queued caller re-checks the shared counter.
const retryPoll = 250 * time.Millisecond

// RedisLimiter implements Limiter with a fixed-window counter shared across
// engine instances. Within a window a channel admits RatePerMinute + Burst
// requests; callers over the allowance poll until the window rolls over or
// their context expires. Less precise than the in-process token bucket but
// correct when several instances deliver to the same channel.
type RedisLimiter struct {
	client redis.Cmdable
	clock  clockwork.Clock
}

func NewRedis(client redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{client: client, clock: clockwork.NewRealClock()}
}

// WithClock replaces the clock, for tests.
func (r *RedisLimiter) WithClock(clock clockwork.Clock) *RedisLimiter {
	r.clock = clock
	return r
}

func (r *RedisLimiter) Acquire(ctx context.Context, channel id.ChannelID, limits Limits) error {
	allowance := int64(limits.RatePerMinute + limits.Burst)
	if allowance <= 0 {
		allowance = 1
	}

	for {
		now := r.clock.Now()
		key := fmt.Sprintf("beacon:ratelimit:%s:%d", channel, now.Unix()/int64(window.Seconds()))

		count, err := r.client.Incr(ctx, key).Result()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit state unavailable")
		}
		if count == 1 {
			// First request in the window owns the expiry. Two windows so a
			// slow clock never orphans the key.
			if err := r.client.PExpire(ctx, key, 2*window).Err(); err != nil {
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit state unavailable")
			}
		}
		if count <= allowance {
			return nil
		}

		// Over allowance: wait for the window to roll over, polling so a
		// competing instance releasing early is picked up.
		windowEnd := now.Truncate(window).Add(window)
		wait := windowEnd.Sub(now)
		if wait > retryPoll {
			wait = retryPoll
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeRateLimited, "rate limit token acquisition timed out")
		case <-r.clock.After(wait):
		}
	}
}
