// Package multicall batches contract reads through the Multicall3
// tryAggregate entrypoint, one eth_call for N inner calls.
package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/pkg/blockchain/abis"
	"github.com/archon-research/liquidator/internal/pkg/hexutil"
	"github.com/archon-research/liquidator/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.Multicaller
var _ outbound.Multicaller = (*Client)(nil)

type Client struct {
	rpc     *chainrpc.Client
	address common.Address
	abi     *abi.ABI
}

// NewClient creates a Multicall3 client bound to the aggregator at
// multicall3Address.
func NewClient(rpc *chainrpc.Client, multicall3Address common.Address) (*Client, error) {
	multicallABI, err := abis.GetMulticall3ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load multicall3 ABI: %w", err)
	}

	return &Client{
		rpc:     rpc,
		address: multicall3Address,
		abi:     multicallABI,
	}, nil
}

func (c *Client) Address() common.Address {
	return c.address
}

// Execute wraps calls in tryAggregate(requireSuccess=false, ...) and issues
// one eth_call. Per-call failures come back as Result.Success=false; only
// aggregator-level failures return an error.
func (c *Client) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	if len(calls) == 0 {
		return []outbound.Result{}, nil
	}

	data, err := c.abi.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("failed to pack multicall: %w", err)
	}

	result, err := c.rpc.EthCall(ctx, c.address, data, blockTag(blockNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to call multicall contract at address=%s block=%s calls=%d: %w",
			c.address.Hex(), blockNumberString(blockNumber), len(calls), err)
	}

	unpacked, err := c.abi.Unpack("tryAggregate", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multicall response at block=%s: %w",
			blockNumberString(blockNumber), err)
	}

	resultsRaw := unpacked[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})

	results := make([]outbound.Result, len(resultsRaw))
	for i, r := range resultsRaw {
		results[i] = outbound.Result{
			Success:    r.Success,
			ReturnData: r.ReturnData,
		}
	}

	return results, nil
}

func blockTag(blockNumber *big.Int) string {
	if blockNumber == nil {
		return "latest"
	}
	return hexutil.EncodeBig(blockNumber)
}

func blockNumberString(blockNumber *big.Int) string {
	if blockNumber == nil {
		return "latest"
	}
	return blockNumber.String()
}
