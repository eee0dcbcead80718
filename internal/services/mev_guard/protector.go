// Package mev_guard applies submission-side protections: slippage clamping,
// a sandwich-risk heuristic and randomized submit timing.
package mev_guard

import (
	"math/rand"
	"time"
)

// Config controls the guard behavior.
type Config struct {
	// UsePrivateTx routes submissions to the private endpoint when available.
	UsePrivateTx bool

	// MaxSlippageBps caps requested slippage tolerance.
	MaxSlippageBps float64

	// RandomizeSubmitMS is the upper bound of a uniform random delay applied
	// before each private submission. Zero disables the delay.
	RandomizeSubmitMS int

	// EnableSandwichGuard aborts swaps whose price impact exceeds 1.5x the
	// slippage cap.
	EnableSandwichGuard bool
}

// Protector evaluates submissions against the configured policy.
type Protector struct {
	config Config
}

func New(config Config) *Protector {
	return &Protector{config: config}
}

// ClampSlippageBps bounds a requested slippage tolerance to [1, MaxSlippageBps].
func (p *Protector) ClampSlippageBps(requested float64) float64 {
	if requested > p.config.MaxSlippageBps {
		requested = p.config.MaxSlippageBps
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

// ShouldAbortForSandwichRisk reports whether an observed price impact is too
// large to submit safely.
func (p *Protector) ShouldAbortForSandwichRisk(priceImpactBps float64) bool {
	if !p.config.EnableSandwichGuard {
		return false
	}
	return priceImpactBps > p.config.MaxSlippageBps*1.5
}

// UsePrivateTx reports whether submissions should prefer the private endpoint.
func (p *Protector) UsePrivateTx() bool {
	return p.config.UsePrivateTx
}

// SubmitDelay returns a uniform random delay in [0, RandomizeSubmitMS] ms.
func (p *Protector) SubmitDelay() time.Duration {
	if p.config.RandomizeSubmitMS <= 0 {
		return 0
	}
	return time.Duration(rand.Intn(p.config.RandomizeSubmitMS+1)) * time.Millisecond
}
