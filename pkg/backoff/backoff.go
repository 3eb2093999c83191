package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Func returns the delay to wait after the given failed attempt (1-based).
type Func func(attempt int) time.Duration

// Longest is the delay Exponential saturates at instead of overflowing.
const Longest = time.Duration(math.MaxInt64)

// Exponential doubles base for every attempt: base, 2*base, 4*base, ...
// The result saturates at Longest.
func Exponential(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d >= float64(math.MaxInt64) {
		return Longest
	}
	return time.Duration(d)
}

func ExponentialJitter(base, max time.Duration, attempt int) time.Duration {
	d := min(Exponential(base, attempt), max)
	if d <= 0 {
		return 0
	}

	// simple jitter: +/- 20%
	j := time.Duration(float64(d) * 0.2)
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(rand.Int63n(int64(2*j)))
}

// Doubling is the Func form of Exponential.
func Doubling(base time.Duration) Func {
	return func(attempt int) time.Duration { return Exponential(base, attempt) }
}

// Jittered is the Func form of ExponentialJitter.
func Jittered(base, max time.Duration) Func {
	return func(attempt int) time.Duration { return ExponentialJitter(base, max, attempt) }
}
