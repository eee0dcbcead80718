package entity

import "fmt"

// Default protocol parameters applied when no per-asset override is configured.
const (
	DefaultLiquidationBonusBps = 10500
	DefaultCloseFactorBps      = 5000
)

// ReserveParams carries the lending-protocol parameters of one debt asset.
type ReserveParams struct {
	LiquidationBonusBps int // 10500 = collateral seized at a 5% discount
	CloseFactorBps      int // share of the debt one call may repay
}

// NewReserveParams creates ReserveParams.
func NewReserveParams(bonusBps, closeBps int) (*ReserveParams, error) {
	p := &ReserveParams{
		LiquidationBonusBps: bonusBps,
		CloseFactorBps:      closeBps,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultReserveParams returns the protocol defaults.
func DefaultReserveParams() ReserveParams {
	return ReserveParams{
		LiquidationBonusBps: DefaultLiquidationBonusBps,
		CloseFactorBps:      DefaultCloseFactorBps,
	}
}

func (p *ReserveParams) validate() error {
	if p.CloseFactorBps < 0 || p.CloseFactorBps > 10000 {
		return fmt.Errorf("closeFactorBps must be in [0,10000], got %d", p.CloseFactorBps)
	}
	if p.LiquidationBonusBps < 0 {
		return fmt.Errorf("liquidationBonusBps must be non-negative, got %d", p.LiquidationBonusBps)
	}
	return nil
}
