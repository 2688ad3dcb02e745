package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays that grow geometrically. A random jitter of
// up to a quarter of the delay spreads out retries from units that failed at
// the same moment; Max caps the final delay, jitter included.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// Delay returns the wait before attempt number retry (first retry is 1).
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(retry-1))
	d += rand.Float64() * d / 4
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}
