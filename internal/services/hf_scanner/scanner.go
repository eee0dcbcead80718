// Package hf_scanner reads borrower health factors from the lending pool.
// Many users batch through the Multicall3 aggregator, with a JSON-RPC batch
// of independent calls as fallback; a single user goes direct.
package hf_scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/pkg/blockchain/abis"
	"github.com/archon-research/liquidator/internal/ports/outbound"
)

// hfWordOffset is the byte offset of healthFactor, the sixth return word of
// getUserAccountData.
const hfWordOffset = 5 * 32

// Result pairs a borrower with their current health factor. HF 0 means the
// read failed and the caller must not act on it.
type Result struct {
	User common.Address
	HF   float64
}

// Config wires the scanner.
type Config struct {
	// Pool is the lending pool queried for account data.
	Pool      common.Address
	RPC       *chainrpc.Client
	Multicall outbound.Multicaller
	Logger    *slog.Logger
}

// Scanner fetches health factors for monitored borrowers.
type Scanner struct {
	config Config
	logger *slog.Logger
	abi    *abi.ABI
}

// New validates config and wires a Scanner.
func New(config Config) (*Scanner, error) {
	if config.RPC == nil {
		return nil, errors.New("hf_scanner: rpc client is required")
	}
	if config.Multicall == nil {
		return nil, errors.New("hf_scanner: multicall client is required")
	}
	poolABI, err := abis.GetLendingPoolABI()
	if err != nil {
		return nil, fmt.Errorf("hf_scanner: loading pool ABI: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		config: config,
		logger: logger.With("component", "hf_scanner"),
		abi:    poolABI,
	}, nil
}

// FetchHealthFactors resolves the health factor of every user, in input
// order. It never returns an error: any read or parse failure degrades to
// HF 0 for that user.
func (s *Scanner) FetchHealthFactors(ctx context.Context, users []common.Address) []Result {
	results := make([]Result, len(users))
	for i, user := range users {
		results[i] = Result{User: user}
	}
	if len(users) == 0 {
		return results
	}

	calls := make([]outbound.Call, len(users))
	for i, user := range users {
		data, err := s.abi.Pack("getUserAccountData", user)
		if err != nil {
			s.logger.Warn("packing account data call", "user", user, "error", err)
			return results
		}
		calls[i] = outbound.Call{Target: s.config.Pool, CallData: data}
	}

	if len(users) == 1 {
		raw, err := s.config.RPC.EthCall(ctx, s.config.Pool, calls[0].CallData, "latest")
		if err != nil {
			s.logger.Debug("account data call failed", "user", users[0], "error", err)
			return results
		}
		results[0].HF = parseHealthFactor(raw)
		return results
	}

	aggregated, err := s.config.Multicall.Execute(ctx, calls, nil)
	if err != nil {
		s.logger.Warn("aggregator failed, falling back to batch", "users", len(users), "error", err)
		return s.fetchViaBatch(ctx, calls, results)
	}
	for i := range aggregated {
		if i >= len(results) {
			break
		}
		results[i].HF = parseHealthFactor(aggregated[i].ReturnData)
	}
	return results
}

// fetchViaBatch issues one JSON-RPC batch of independent calls. Failed
// entries keep HF 0.
func (s *Scanner) fetchViaBatch(ctx context.Context, calls []outbound.Call, results []Result) []Result {
	batch := make([]chainrpc.EthCall, len(calls))
	for i, call := range calls {
		batch[i] = chainrpc.EthCall{To: call.Target, Data: call.CallData}
	}
	raws, err := s.config.RPC.BatchEthCall(ctx, batch, "latest")
	if err != nil {
		s.logger.Warn("batch fallback failed", "calls", len(calls), "error", err)
		return results
	}
	for i := range raws {
		if i >= len(results) || raws[i] == nil {
			continue
		}
		results[i].HF = parseHealthFactor(raws[i])
	}
	return results
}

// parseHealthFactor extracts the sixth return word and scales it down by
// 1e18. Short data parses to 0.
func parseHealthFactor(data []byte) float64 {
	if len(data) < hfWordOffset+32 {
		return 0
	}
	wei := new(big.Int).SetBytes(data[hfWordOffset : hfWordOffset+32])
	hf, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return hf
}
