// Package restart provides pluggable restart strategies for job execution.
// A strategy decides, given the failure history of one execution graph,
// whether the job may attempt execution again and after what delay.
// All strategies are safe for concurrent use (they are stateless); the
// failure counter and last-attempt timestamp live in the execution graph.
package restart

import (
	"math"
	"math/rand/v2"
	"time"
)

// Decision is the outcome of consulting a Strategy after a failure.
type Decision struct {
	// Retry reports whether another execution attempt is allowed.
	Retry bool
	// Delay is how long to wait before the next attempt. Meaningful only
	// when Retry is true.
	Delay time.Duration
}

// RetryAfter builds a Decision allowing a retry after the given delay.
func RetryAfter(d time.Duration) Decision {
	return Decision{Retry: true, Delay: d}
}

// Exhausted is the Decision denying any further attempts.
var Exhausted = Decision{}

// Strategy decides whether a failed job retries execution.
type Strategy interface {
	// Decide returns the retry decision after the failureCount-th failure
	// (1-indexed). elapsed is the time since the previous execution attempt
	// began.
	Decide(failureCount int, elapsed time.Duration) Decision
}

// ──────────────────────────────────────────────────
// NoRestart
// ──────────────────────────────────────────────────

// NoRestart denies every retry: the first failure is terminal.
type NoRestart struct{}

// NewNoRestart creates a strategy that never retries.
func NewNoRestart() *NoRestart {
	return &NoRestart{}
}

// Decide always returns Exhausted.
func (*NoRestart) Decide(_ int, _ time.Duration) Decision {
	return Exhausted
}

// ──────────────────────────────────────────────────
// FixedDelay
// ──────────────────────────────────────────────────

// FixedDelay retries with a constant delay between attempts until
// MaxAttempts failures have occurred. A MaxAttempts of zero or less means
// unbounded: the job never self-terminates from failures alone.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a fixed-delay restart strategy.
// maxAttempts <= 0 allows unlimited attempts.
func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxAttempts: maxAttempts}
}

// Decide allows a retry after the fixed delay while attempts remain.
func (f *FixedDelay) Decide(failureCount int, _ time.Duration) Decision {
	if f.MaxAttempts > 0 && failureCount > f.MaxAttempts {
		return Exhausted
	}
	return RetryAfter(f.Delay)
}

// ──────────────────────────────────────────────────
// ExponentialDelay
// ──────────────────────────────────────────────────

// ExponentialDelay doubles the delay each failure.
// Delay = min(Initial * 2^(failureCount-1), Max). A MaxAttempts of zero or
// less means unbounded.
type ExponentialDelay struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// NewExponentialDelay creates an exponential restart strategy.
func NewExponentialDelay(initial, maxDelay time.Duration, maxAttempts int) *ExponentialDelay {
	return &ExponentialDelay{Initial: initial, Max: maxDelay, MaxAttempts: maxAttempts}
}

// Decide allows a retry after Initial * 2^(failureCount-1), capped at Max.
func (e *ExponentialDelay) Decide(failureCount int, _ time.Duration) Decision {
	if e.MaxAttempts > 0 && failureCount > e.MaxAttempts {
		return Exhausted
	}

	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(failureCount-1)))
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	return RetryAfter(d)
}

// ──────────────────────────────────────────────────
// ExponentialDelayWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialDelayWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(failureCount-1), Max)].
// This prevents thundering herd when many graphs restart simultaneously.
type ExponentialDelayWithJitter struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// NewExponentialDelayWithJitter creates an exponential restart strategy
// with full jitter.
func NewExponentialDelayWithJitter(initial, maxDelay time.Duration, maxAttempts int) *ExponentialDelayWithJitter {
	return &ExponentialDelayWithJitter{Initial: initial, Max: maxDelay, MaxAttempts: maxAttempts}
}

// Decide allows a retry after a random delay in [0, capped exponential base].
func (e *ExponentialDelayWithJitter) Decide(failureCount int, _ time.Duration) Decision {
	if e.MaxAttempts > 0 && failureCount > e.MaxAttempts {
		return Exhausted
	}

	base := float64(e.Initial) * math.Pow(2, float64(failureCount-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return RetryAfter(time.Duration(rand.Float64() * base)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the restart strategy used when a job does not
// configure one: FixedDelay with 10s delay and unlimited attempts.
func DefaultStrategy() Strategy {
	return NewFixedDelay(10*time.Second, 0)
}
