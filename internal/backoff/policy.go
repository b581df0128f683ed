// Package backoff computes exponential retry delays with optional jitter.
package backoff

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy defines an exponential backoff curve.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps every delay.
	Max time.Duration
	// Factor multiplies the delay per attempt. Must be greater than 1.
	Factor float64
	// Jitter adds up to Jitter*base of random delay (0.0 to 1.0).
	Jitter float64
}

// DefaultPolicy returns the queue retry policy.
// Initial: 5s, Max: 10m, Factor: 2, no jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial: 5 * time.Second,
		Max:     10 * time.Minute,
		Factor:  2,
	}
}

// Validate reports whether p produces strictly increasing delays below Max.
func (p Policy) Validate() error {
	switch {
	case p.Initial <= 0:
		return errors.New("backoff: initial delay must be positive")
	case p.Max < p.Initial:
		return errors.New("backoff: max delay must be at least the initial delay")
	case p.Factor <= 1:
		return errors.New("backoff: factor must be greater than 1")
	case p.Jitter < 0 || p.Jitter > 1:
		return errors.New("backoff: jitter must be between 0 and 1")
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand is Delay with a caller-supplied random value in [0, 1).
// The formula is min(Max, Initial*Factor^(attempt-1) + jitter).
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*randomValue
	if limit := float64(p.Max); p.Max > 0 && total > limit {
		total = limit
	}
	return time.Duration(math.Round(total/float64(time.Millisecond))) * time.Millisecond
}
