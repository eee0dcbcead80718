// Package erc20 reads token metadata and balances over eth_call.
package erc20

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/pkg/blockchain/abis"
)

// Reader answers ERC-20 view calls against the latest block.
type Reader struct {
	rpc *chainrpc.Client
	abi *abi.ABI
}

// NewReader parses the token ABI once and wraps the given RPC client.
func NewReader(rpc *chainrpc.Client) (*Reader, error) {
	if rpc == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	tokenABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parsing token ABI: %w", err)
	}
	return &Reader{rpc: rpc, abi: tokenABI}, nil
}

// Decimals returns the token's decimals() value.
func (r *Reader) Decimals(ctx context.Context, token common.Address) (int, error) {
	data, err := r.abi.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("encoding decimals call: %w", err)
	}
	out, err := r.rpc.EthCall(ctx, token, data, "latest")
	if err != nil {
		return 0, fmt.Errorf("calling decimals on %s: %w", token, err)
	}
	values, err := r.abi.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decoding decimals result: %w", err)
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	return int(dec), nil
}

// BalanceOf returns the owner's token balance.
func (r *Reader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("encoding balanceOf call: %w", err)
	}
	out, err := r.rpc.EthCall(ctx, token, data, "latest")
	if err != nil {
		return nil, fmt.Errorf("calling balanceOf on %s: %w", token, err)
	}
	values, err := r.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("decoding balanceOf result: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return balance, nil
}

// Allowance returns the spender's remaining allowance from owner.
func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("encoding allowance call: %w", err)
	}
	out, err := r.rpc.EthCall(ctx, token, data, "latest")
	if err != nil {
		return nil, fmt.Errorf("calling allowance on %s: %w", token, err)
	}
	values, err := r.abi.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("decoding allowance result: %w", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T", values[0])
	}
	return allowance, nil
}
