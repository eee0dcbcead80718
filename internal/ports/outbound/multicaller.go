package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Multicaller batches many eth_calls into one aggregator invocation.
type Multicaller interface {
	Execute(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error)
	Address() common.Address
}

type Call struct {
	Target   common.Address
	CallData []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}
