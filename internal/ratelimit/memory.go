package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	id "beacon/pkg/domain"
	dErrors "beacon/pkg/domain-errors"
)

// MemoryLimiter implements Limiter with one golang.org/x/time/rate token
// bucket per channel. Suitable for single-instance deployments; use
// RedisLimiter when several engine instances share channel quotas.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[id.ChannelID]*rate.Limiter

	// acquireTimeout bounds how long a caller may queue for a token. Zero
	// means callers wait as long as their own context allows.
	acquireTimeout time.Duration
}

func NewMemory(acquireTimeout time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:        make(map[id.ChannelID]*rate.Limiter),
		acquireTimeout: acquireTimeout,
	}
}

func (m *MemoryLimiter) Acquire(ctx context.Context, channel id.ChannelID, limits Limits) error {
	bucket := m.bucket(channel, limits)

	if m.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.acquireTimeout)
		defer cancel()
	}

	if err := bucket.Wait(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRateLimited, "rate limit token acquisition timed out")
	}
	return nil
}

// bucket returns the channel's limiter, creating it on first use. Limits are
// fixed at creation; a routing table change takes effect after restart.
func (m *MemoryLimiter) bucket(channel id.ChannelID, limits Limits) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[channel]; ok {
		return b
	}

	perSecond := rate.Limit(float64(limits.RatePerMinute) / 60.0)
	burst := limits.Burst
	if burst <= 0 {
		burst = 1
	}
	b := rate.NewLimiter(perSecond, burst)
	m.buckets[channel] = b
	return b
}
