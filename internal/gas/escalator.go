package gas

import (
	"time"

	"github.com/archon-research/liquidator/internal/domain/entity"
)

const (
	defaultBumpFactor = 1.2
	defaultInterval   = 4 * time.Second
	defaultMaxBumps   = 3
)

// Escalator produces replacement fee quotes for stuck transactions. Each
// bump multiplies both fee fields so the replacement clears the node's
// price-bump threshold.
type Escalator struct {
	factor   float64
	interval time.Duration
	maxBumps int
}

// NewEscalator creates an Escalator; zero arguments select the defaults.
func NewEscalator(factor float64, interval time.Duration, maxBumps int) *Escalator {
	if factor < 1 {
		factor = defaultBumpFactor
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if maxBumps < 0 {
		maxBumps = defaultMaxBumps
	}
	return &Escalator{factor: factor, interval: interval, maxBumps: maxBumps}
}

// Next returns the bumped quote for the following replacement attempt.
func (e *Escalator) Next(current entity.GasQuote) entity.GasQuote {
	return current.Bump(e.factor)
}

// Interval is the wait between replacement attempts.
func (e *Escalator) Interval() time.Duration {
	return e.interval
}

// MaxBumps is the number of replacements allowed after the first submission.
func (e *Escalator) MaxBumps() int {
	return e.maxBumps
}
