// Package gas prices EIP-1559 transactions for competitive inclusion and
// escalates fees on replacement.
package gas

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/ports/outbound"
)

// Fallbacks in wei, used when the node cannot supply live values.
var (
	fallbackPriorityFee = big.NewInt(30_000_000_000) // 30 gwei
	fallbackBaseFee     = big.NewInt(50_000_000_000) // 50 gwei
)

// Strategy derives a fee quote from the node's suggested tip and the latest
// base fee: max fee = 2*base + tip, so the quote survives one full upward
// base fee adjustment.
type Strategy struct {
	rpc    *chainrpc.Client
	events outbound.EventSink
	logger *slog.Logger
}

// NewStrategy creates a Strategy. events and logger may be nil.
func NewStrategy(rpc *chainrpc.Client, events outbound.EventSink, logger *slog.Logger) *Strategy {
	if events == nil {
		events = outbound.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{rpc: rpc, events: events, logger: logger}
}

// Quote returns the fee pair for the next transaction. RPC failures degrade
// to the fallback fees rather than blocking a liquidation.
func (s *Strategy) Quote(ctx context.Context) entity.GasQuote {
	priority := fallbackPriorityFee
	if tip, err := s.rpc.MaxPriorityFeePerGas(ctx); err != nil {
		s.logger.Warn("priority fee lookup failed, using fallback", "fallback_wei", fallbackPriorityFee, "err", err)
	} else if tip.Sign() > 0 {
		priority = tip
	}

	base := fallbackBaseFee
	if b, err := s.rpc.LatestBaseFee(ctx); err != nil {
		s.logger.Warn("base fee lookup failed, using fallback", "fallback_wei", fallbackBaseFee, "err", err)
	} else if b.Sign() > 0 {
		base = b
	}

	maxFee := new(big.Int).Lsh(base, 1)
	maxFee.Add(maxFee, priority)

	s.events.Emit("gas_quote", map[string]any{
		"base_fee":     base.Uint64(),
		"priority_fee": priority.Uint64(),
		"max_fee":      maxFee.Uint64(),
	})

	return entity.GasQuote{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: new(big.Int).Set(priority),
	}
}
