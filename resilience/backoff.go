package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

const maxShift = 62

// Backoff computes retry delays as min(Base * 2^(attempts-1), Max).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Jitter adds up to 10% on top of the exponential delay, still capped at Max.
	Jitter bool
}

// Delay returns the delay to apply after the given number of failed attempts.
// attempts below 1 are treated as 1.
func (b Backoff) Delay(attempts int) time.Duration {
	d := exponential(b.Base, attempts-1)
	if b.Jitter && d > 0 && d < time.Duration(math.MaxInt64/2) {
		d += time.Duration(rand.Int64N(int64(d)/10 + 1))
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// exponential returns base * 2^shift, saturating instead of overflowing.
func exponential(base time.Duration, shift int) time.Duration {
	if base <= 0 {
		return 0
	}
	if shift < 0 {
		shift = 0
	} else if shift > maxShift {
		shift = maxShift
	}

	multiplier := int64(1) << shift
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(int64(base) * multiplier)
}
