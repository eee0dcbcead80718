package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BorrowerPosition is one borrower's state for a single scan tick.
type BorrowerPosition struct {
	User         common.Address
	HealthFactor float64        // wire value / 1e18; 0 means unknown
	Debt         common.Address // candidate debt asset
	Collateral   common.Address // candidate collateral asset
	USDValue     float64        // advisory notional
}

// LiquidationTarget identifies one liquidation attempt: a borrower plus the
// (debt, collateral) pair to act on.
type LiquidationTarget struct {
	User       common.Address
	Debt       common.Address
	Collateral common.Address
	USDValue   float64
}

// NewLiquidationTarget creates a LiquidationTarget.
func NewLiquidationTarget(user, debt, collateral common.Address, usdValue float64) (*LiquidationTarget, error) {
	t := &LiquidationTarget{
		User:       user,
		Debt:       debt,
		Collateral: collateral,
		USDValue:   usdValue,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *LiquidationTarget) validate() error {
	if t.User == (common.Address{}) {
		return fmt.Errorf("user must not be the zero address")
	}
	if t.Debt == t.Collateral {
		return fmt.Errorf("debt and collateral must differ, both are %s", t.Debt.Hex())
	}
	if t.USDValue < 0 {
		return fmt.Errorf("usdValue must be non-negative, got %f", t.USDValue)
	}
	return nil
}

// Pair renders the collateral/debt pair for logging, e.g. "0xabc.../0xdef...".
func (t *LiquidationTarget) Pair() string {
	return t.Collateral.Hex() + "/" + t.Debt.Hex()
}
