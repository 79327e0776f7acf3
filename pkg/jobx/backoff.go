package jobx

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: base * 2^(attempts-1), capped at Cap, then
// spread uniformly within ±JitterRatio of the capped value.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	JitterRatio float64

	// Rand returns values in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultBackoff is 2s doubling up to 60s with 30% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Cap: 60 * time.Second, JitterRatio: 0.3}
}

// Seconds returns the delay for a job that has just failed its attempts-th
// attempt, as a whole number of seconds.
func (b Backoff) Seconds(attempts int) int {
	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return BackoffSeconds(attempts, b.Base.Seconds(), b.Cap.Seconds(), b.JitterRatio, rnd)
}

// Delay is Seconds as a duration.
func (b Backoff) Delay(attempts int) time.Duration {
	return time.Duration(b.Seconds(attempts)) * time.Second
}

// maxBackoffSeconds bounds uncapped delays so the result fits an int and a
// time.Duration.
const maxBackoffSeconds = math.MaxInt32

// BackoffSeconds is the pure form of Backoff.Seconds. Attempts below one are
// treated as one, so the first retry waits base.
func BackoffSeconds(attempts int, base, cap, jitterRatio float64, rnd func() float64) int {
	if attempts < 1 {
		attempts = 1
	}

	delay := base * math.Pow(2, float64(attempts-1))
	if cap > 0 && delay > cap {
		delay = cap
	}
	delay = math.Min(delay, maxBackoffSeconds)

	if jitterRatio > 0 && rnd != nil {
		delay += delay * jitterRatio * (2*rnd() - 1)
	}

	if delay < 0 || math.IsNaN(delay) {
		return 0
	}
	return int(math.Round(math.Min(delay, maxBackoffSeconds)))
}
