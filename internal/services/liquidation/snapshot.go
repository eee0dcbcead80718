package liquidation

import (
	"math/big"

	"github.com/archon-research/liquidator/internal/domain/entity"
)

// Snapshot pins every market fact one planning pass depends on: the block
// the quotes must come from, token metadata, prices, liquidation parameters
// and the fee quote. The manager assembles it; the planner only reads it.
type Snapshot struct {
	Block  uint64
	Target entity.LiquidationTarget

	DebtDecimals   int
	CollatDecimals int
	DebtPriceUSD   float64
	CollatPriceUSD float64

	Reserve entity.ReserveParams
	Gas     entity.GasQuote

	MaxSlippageBps float64

	// Deadline is the unix-seconds expiry stamped into every swap leg.
	Deadline *big.Int
}

// SkipReason is the closed set of reasons a target is dropped before
// submission. Skips are outcomes, not errors.
type SkipReason string

const (
	SkipNone                  SkipReason = ""
	SkipBelowMinimum          SkipReason = "below_minimum"
	SkipInsufficientLiquidity SkipReason = "insufficient_liquidity"
	SkipProfitGuard           SkipReason = "profit_guard"
)
