package liquidation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/pkg/blockchain/abis"
)

const selectorLength = 4

// CalldataBuilder encodes executor contract calls. Deployments that renamed
// the entry points keep the canonical tuple layout, so a configured selector
// override replaces only the first four bytes.
type CalldataBuilder struct {
	abi            *abi.ABI
	singleSelector []byte
	batchSelector  []byte
}

// NewCalldataBuilder wires a builder. The selector overrides may be empty;
// when set they must be exactly four bytes.
func NewCalldataBuilder(singleSelector, batchSelector []byte) (*CalldataBuilder, error) {
	executorABI, err := abis.GetExecutorABI()
	if err != nil {
		return nil, fmt.Errorf("loading executor ABI: %w", err)
	}
	if len(singleSelector) != 0 && len(singleSelector) != selectorLength {
		return nil, fmt.Errorf("single selector override must be %d bytes, got %d", selectorLength, len(singleSelector))
	}
	if len(batchSelector) != 0 && len(batchSelector) != selectorLength {
		return nil, fmt.Errorf("batch selector override must be %d bytes, got %d", selectorLength, len(batchSelector))
	}
	return &CalldataBuilder{
		abi:            executorABI,
		singleSelector: singleSelector,
		batchSelector:  batchSelector,
	}, nil
}

// LiquidateAndArb encodes the single-liquidation call.
func (b *CalldataBuilder) LiquidateAndArb(params entity.ExecutorParams) ([]byte, error) {
	data, err := b.abi.Pack("liquidateAndArb", params)
	if err != nil {
		return nil, fmt.Errorf("packing liquidateAndArb: %w", err)
	}
	return overrideSelector(data, b.singleSelector), nil
}

// LiquidateBatchAndArb encodes the batch call: many users sharing one
// (debt, collateral) pair repaid from a single flash loan.
func (b *CalldataBuilder) LiquidateBatchAndArb(params entity.BatchExecutorParams) ([]byte, error) {
	data, err := b.abi.Pack("liquidateBatchAndArb", params)
	if err != nil {
		return nil, fmt.Errorf("packing liquidateBatchAndArb: %w", err)
	}
	return overrideSelector(data, b.batchSelector), nil
}

func overrideSelector(data, selector []byte) []byte {
	if len(selector) == selectorLength && len(data) >= selectorLength {
		copy(data[:selectorLength], selector)
	}
	return data
}
