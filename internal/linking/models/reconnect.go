package models

import (
	"math/rand/v2"
	"time"
)

// ReconnectPolicy computes backoff delays after transient transport failures.
// It is a pure value recomputed by the supervisor on each failure; nothing
// here is persisted.
type ReconnectPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	GiveUpAfter int
}

// DefaultReconnectPolicy matches the production tuning: 2s doubling to a 2m
// cap, giving up after 10 attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Initial:     2 * time.Second,
		Max:         2 * time.Minute,
		Multiplier:  2,
		GiveUpAfter: 10,
	}
}

// Delay returns the deterministic base delay for the given attempt (1-based).
// The ladder is monotonically non-decreasing and capped at Max.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.Initial
	}
	d := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.Max) {
			return p.Max
		}
	}
	return time.Duration(d)
}

// JitteredDelay adds up to 20% random jitter on top of the base delay so
// many supervisors reconnecting at once do not synchronize. Jitter is only
// additive, which keeps consecutive delays non-decreasing, and the result
// never exceeds Max.
func (p ReconnectPolicy) JitteredDelay(attempt int) time.Duration {
	d := p.Delay(attempt)
	d += time.Duration(rand.Int64N(int64(d)/5 + 1))
	if d > p.Max {
		return p.Max
	}
	return d
}

// Exhausted reports whether the attempt count has used up the retry budget.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return p.GiveUpAfter > 0 && attempt >= p.GiveUpAfter
}
