// Package backoff centralizes retry delay calculation so the recovery engine
// and retry policies share one implementation.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy selects the delay curve.
type Strategy int

const (
	// ExponentialJitter grows the delay by multiplier^attempt and adds a
	// uniform random fraction of it, capped at the maximum.
	ExponentialJitter Strategy = iota
	// DecorrelatedJitter picks a random delay between the base and
	// base*3^attempt, capped at the maximum. Smoother tail latencies under
	// contention; see the AWS exponential backoff and jitter write-up.
	DecorrelatedJitter
)

// Delay returns the wait before retry number attempt (0-based). The result is
// monotonically bounded: it never exceeds max and never goes negative.
func Delay(strategy Strategy, attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration {
	switch strategy {
	case DecorrelatedJitter:
		return decorrelated(attempt, initial, max)
	default:
		return exponential(attempt, initial, max, multiplier, jitter)
	}
}

func exponential(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the exponent so the float math cannot overflow into a negative
	// duration.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(initial) * pow(multiplier, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > max {
			delay = max
		} else {
			delay += extra
		}
	}
	return delay
}

func decorrelated(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initial)
	upper := base * pow(3.0, attempt)
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

// clampJitter bounds the jitter fraction to [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
