package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Swap is one router invocation the executor performs in order.
type Swap struct {
	Router   common.Address
	CallData []byte
}

// ExecutorParams is the input tuple of the executor's single-liquidation call.
type ExecutorParams struct {
	User            common.Address
	DebtAsset       common.Address
	DebtToCover     *big.Int
	CollateralAsset common.Address
	Swaps           []Swap
	ProfitReceiver  common.Address
	MinProfit       *big.Int
}

// NewExecutorParams creates ExecutorParams.
func NewExecutorParams(user, debt common.Address, debtToCover *big.Int, collateral common.Address, swaps []Swap, profitReceiver common.Address, minProfit *big.Int) (*ExecutorParams, error) {
	p := &ExecutorParams{
		User:            user,
		DebtAsset:       debt,
		DebtToCover:     debtToCover,
		CollateralAsset: collateral,
		Swaps:           swaps,
		ProfitReceiver:  profitReceiver,
		MinProfit:       minProfit,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ExecutorParams) validate() error {
	if p.DebtToCover == nil || p.DebtToCover.Sign() <= 0 {
		return fmt.Errorf("debtToCover must be positive")
	}
	if p.ProfitReceiver == (common.Address{}) {
		return fmt.Errorf("profitReceiver must not be the zero address")
	}
	if p.MinProfit == nil {
		return fmt.Errorf("minProfit must not be nil")
	}
	return nil
}

// BatchExecutorParams is the input tuple of the executor's batch call: many
// users sharing one (debt, collateral) pair, repaid from one flash loan.
type BatchExecutorParams struct {
	Users           []common.Address
	DebtAsset       common.Address
	DebtToCover     []*big.Int // parallel to Users
	CollateralAsset common.Address
	Swaps           []Swap
	ProfitReceiver  common.Address
	MinProfit       *big.Int
}

// NewBatchExecutorParams creates BatchExecutorParams.
func NewBatchExecutorParams(users []common.Address, debt common.Address, debtToCover []*big.Int, collateral common.Address, swaps []Swap, profitReceiver common.Address, minProfit *big.Int) (*BatchExecutorParams, error) {
	p := &BatchExecutorParams{
		Users:           users,
		DebtAsset:       debt,
		DebtToCover:     debtToCover,
		CollateralAsset: collateral,
		Swaps:           swaps,
		ProfitReceiver:  profitReceiver,
		MinProfit:       minProfit,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *BatchExecutorParams) validate() error {
	if len(p.Users) == 0 {
		return fmt.Errorf("users must not be empty")
	}
	if len(p.Users) != len(p.DebtToCover) {
		return fmt.Errorf("debtToCover length %d does not match users length %d", len(p.DebtToCover), len(p.Users))
	}
	for i, amt := range p.DebtToCover {
		if amt == nil || amt.Sign() <= 0 {
			return fmt.Errorf("debtToCover[%d] must be positive", i)
		}
	}
	if p.ProfitReceiver == (common.Address{}) {
		return fmt.Errorf("profitReceiver must not be the zero address")
	}
	if p.MinProfit == nil {
		return fmt.Errorf("minProfit must not be nil")
	}
	return nil
}

// TotalDebtToCover sums the per-user repay amounts; the caller checks it
// against the flash-loan size.
func (p *BatchExecutorParams) TotalDebtToCover() *big.Int {
	total := new(big.Int)
	for _, amt := range p.DebtToCover {
		total.Add(total, amt)
	}
	return total
}
