package sitetosite

import (
	"math/rand"
	"time"
)

// Default penalty configuration values.
const (
	DefaultPenaltyPeriod = 3 * time.Second
	DefaultPenaltyMax    = 60 * time.Second
)

// penalty computes exponentially growing peer penalties with jitter.
type penalty struct {
	initial time.Duration
	max     time.Duration
}

func newPenalty(initial, max time.Duration) penalty {
	if initial <= 0 {
		initial = DefaultPenaltyPeriod
	}
	if max < initial {
		max = initial
	}
	return penalty{initial: initial, max: max}
}

// duration returns the penalty for the given number of consecutive failures.
func (p penalty) duration(failures int) time.Duration {
	d := p.initial
	for i := 1; i < failures && d < p.max; i++ {
		d *= 2
	}
	if d > p.max {
		d = p.max
	}

	// Add jitter: ±20%
	jitter := float64(d) * 0.2 * (rand.Float64()*2 - 1)
	return time.Duration(float64(d) + jitter)
}
