package client

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy returns how long to wait before retry number attempt (0-based).
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Factor per attempt, capped at Max,
// then spreads it by +/- Jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff is 200ms doubling to 3s with 20% jitter.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   200 * time.Millisecond,
		Max:    3 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := math.Min(float64(b.Base)*math.Pow(b.Factor, float64(attempt)), float64(b.Max))

	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// ConstantBackoff always waits the same duration.
type ConstantBackoff time.Duration

func (c ConstantBackoff) Next(int) time.Duration { return time.Duration(c) }
