// Package ratelimit guards outbound webhook throughput. Each destination
// channel gets its own token bucket so a noisy or heavily throttled channel
// cannot starve the others. Acquire blocks the caller in arrival order until a
// token is available or the context expires; it never silently drops work.
package ratelimit

import (
	"context"

	id "beacon/pkg/domain"
)

// Limits are the per-channel bucket parameters: steady refill rate plus a
// burst allowance.
type Limits struct {
	RatePerMinute int
	Burst         int
}

// Limiter admits outbound requests per channel.
type Limiter interface {
	// Acquire blocks until a token for the channel is available or ctx is
	// done. A nil return means the caller may send one request.
	Acquire(ctx context.Context, channel id.ChannelID, limits Limits) error
}
