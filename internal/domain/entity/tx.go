package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GasQuote is an EIP-1559 fee pair in wei.
type GasQuote struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Bump returns a new quote with both fees multiplied by factor, rounded down.
// Fees never decrease: a factor below 1 is treated as 1.
func (q GasQuote) Bump(factor float64) GasQuote {
	if factor < 1 {
		factor = 1
	}
	return GasQuote{
		MaxFeePerGas:         mulFloat(q.MaxFeePerGas, factor),
		MaxPriorityFeePerGas: mulFloat(q.MaxPriorityFeePerGas, factor),
	}
}

func mulFloat(n *big.Int, factor float64) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	scaled := new(big.Float).Mul(new(big.Float).SetInt(n), big.NewFloat(factor))
	out, _ := scaled.Int(nil)
	return out
}

// TransactionFields holds everything needed to sign one EIP-1559 transaction.
type TransactionFields struct {
	ChainID              uint64
	Nonce                uint64
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	To                   common.Address
	Value                *big.Int
	Data                 []byte
}

// Validate checks the EIP-1559 fee invariant.
func (f *TransactionFields) Validate() error {
	if f.MaxFeePerGas == nil || f.MaxPriorityFeePerGas == nil {
		return fmt.Errorf("fee fields must not be nil")
	}
	if f.MaxFeePerGas.Cmp(f.MaxPriorityFeePerGas) < 0 {
		return fmt.Errorf("maxFeePerGas %s below maxPriorityFeePerGas %s", f.MaxFeePerGas, f.MaxPriorityFeePerGas)
	}
	return nil
}

// ExecutionResult is the outcome of one liquidation attempt.
type ExecutionResult struct {
	Success     bool
	TxHash      common.Hash // last submitted hash, set even on failure
	BlockNumber uint64      // receipt block, zero when never mined
	GasUsed     uint64
	Skipped     bool   // aborted before submission by a skip rule
	SkipReason  string // set when Skipped
	Err         error  // set on hard failures
}
