package teardown

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate backoff delays.
// Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	// NextBackoff returns the backoff duration given the attempt number.
	// attempt starts at 1 for the first retry.
	NextBackoff(attempt int) time.Duration
}

// BackoffConfig holds configuration for backoff strategies.
type BackoffConfig struct {
	// InitialInterval is the starting backoff interval.
	InitialInterval time.Duration

	// MaxInterval is the maximum backoff interval.
	MaxInterval time.Duration

	// Multiplier is the factor by which the interval increases.
	Multiplier float64

	// RandomizationFactor adds jitter to prevent thundering herd.
	// 0 means no randomization, 0.5 means ±50%.
	RandomizationFactor float64
}

// exponentialBackoff implements exponential backoff.
type exponentialBackoff struct {
	config BackoffConfig
}

// ExponentialBackoff creates an exponential backoff strategy.
//
// The backoff duration increases exponentially with each attempt:
//   - Attempt 1: InitialInterval
//   - Attempt 2: InitialInterval * Multiplier
//   - Attempt 3: InitialInterval * Multiplier^2
//   - ...up to MaxInterval
//
// Example:
//
//	backoff := ExponentialBackoff(BackoffConfig{
//	    InitialInterval: 5 * time.Second,
//	    MaxInterval:     5 * time.Minute,
//	    Multiplier:      2.0,
//	})
func ExponentialBackoff(config BackoffConfig) BackoffStrategy {
	if config.InitialInterval == 0 {
		config.InitialInterval = 1 * time.Second
	}
	if config.MaxInterval == 0 {
		config.MaxInterval = 5 * time.Minute
	}
	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}
	return &exponentialBackoff{config: config}
}

func (b *exponentialBackoff) NextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	interval := float64(b.config.InitialInterval) * math.Pow(b.config.Multiplier, float64(attempt-1))
	if interval > float64(b.config.MaxInterval) {
		interval = float64(b.config.MaxInterval)
	}

	if b.config.RandomizationFactor > 0 {
		delta := b.config.RandomizationFactor * interval
		minInterval := interval - delta
		maxInterval := interval + delta
		interval = minInterval + rand.Float64()*(maxInterval-minInterval)
	}

	return time.Duration(interval)
}

// constantBackoff implements constant backoff.
type constantBackoff struct {
	interval time.Duration
}

// ConstantBackoff creates a strategy that always returns the same duration.
func ConstantBackoff(interval time.Duration) BackoffStrategy {
	return &constantBackoff{interval: interval}
}

func (b *constantBackoff) NextBackoff(int) time.Duration {
	return b.interval
}

// jitteredBackoff wraps a strategy with jitter.
type jitteredBackoff struct {
	strategy BackoffStrategy
	factor   float64
}

// WithJitter wraps a backoff strategy with jitter.
// factor is the jitter factor (e.g., 0.1 for ±10%).
func WithJitter(strategy BackoffStrategy, factor float64) BackoffStrategy {
	return &jitteredBackoff{
		strategy: strategy,
		factor:   factor,
	}
}

func (b *jitteredBackoff) NextBackoff(attempt int) time.Duration {
	interval := b.strategy.NextBackoff(attempt)

	if b.factor > 0 && interval > 0 {
		delta := float64(interval) * b.factor
		interval = time.Duration(float64(interval) + (rand.Float64()*2-1)*delta)
	}

	return interval
}

// RetryPolicy turns a pass number into the delay applied before the pass
// signals completion.
type RetryPolicy struct {
	// Strategy is the backoff strategy to use.
	Strategy BackoffStrategy

	// MaxAttempts bounds the number of passes the strategy is consulted for
	// (0 = unlimited). Past it, the policy is exhausted and MaxDelay applies.
	MaxAttempts int

	// MaxDelay is the delay used once the policy is exhausted. Zero means the
	// strategy's delay for MaxAttempts.
	MaxDelay time.Duration
}

// Delay returns the delay for a pass that has been retried attempt times
// before (0 for the first pass), and whether the policy is exhausted.
func (p RetryPolicy) Delay(attempt int) (time.Duration, bool) {
	if p.Strategy == nil {
		return 0, false
	}
	n := attempt + 1
	if p.MaxAttempts > 0 && n > p.MaxAttempts {
		if p.MaxDelay > 0 {
			return p.MaxDelay, true
		}
		return p.Strategy.NextBackoff(p.MaxAttempts), true
	}
	return p.Strategy.NextBackoff(n), false
}

// RetryPolicies holds one policy per retry reason.
type RetryPolicies struct {
	// NotFinalized applies when the handler reports cleanup is still in progress.
	NotFinalized RetryPolicy

	// Error applies when a step of the pass failed.
	Error RetryPolicy
}

// DefaultRetryPolicies returns exponential policies with jitter: 3s initial
// delay capped at 2m while waiting on the handler, 5s initial delay capped at
// 5m after errors. The not-finalized delay stays below the error delay for
// every attempt.
func DefaultRetryPolicies() RetryPolicies {
	return RetryPolicies{
		NotFinalized: RetryPolicy{
			Strategy: ExponentialBackoff(BackoffConfig{
				InitialInterval:     3 * time.Second,
				MaxInterval:         2 * time.Minute,
				Multiplier:          2.0,
				RandomizationFactor: 0.1,
			}),
			MaxAttempts: 10,
			MaxDelay:    2 * time.Minute,
		},
		Error: RetryPolicy{
			Strategy: ExponentialBackoff(BackoffConfig{
				InitialInterval:     5 * time.Second,
				MaxInterval:         5 * time.Minute,
				Multiplier:          2.0,
				RandomizationFactor: 0.1,
			}),
			MaxAttempts: 10,
			MaxDelay:    5 * time.Minute,
		},
	}
}

// FixedRetryPolicies returns policies with constant delays and no attempt
// bound.
func FixedRetryPolicies(notFinalized, failed time.Duration) RetryPolicies {
	return RetryPolicies{
		NotFinalized: RetryPolicy{Strategy: ConstantBackoff(notFinalized)},
		Error:        RetryPolicy{Strategy: ConstantBackoff(failed)},
	}
}
