// Package price_oracle resolves token USD prices from configured overrides
// or live router quotes, caches token decimals for the process lifetime and
// serves per-asset liquidation parameters.
package price_oracle

import (
	"context"
	"log/slog"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/domain/entity"
)

// Quoter asks a V2 router for the output of a swap path. Served by the
// dex_router planner in production.
type Quoter interface {
	QuoteAmountsOut(ctx context.Context, router common.Address, path []common.Address, amountIn *big.Int) (*big.Int, error)
}

// DecimalsReader reads a token's decimals() from chain.
type DecimalsReader interface {
	Decimals(ctx context.Context, token common.Address) (int, error)
}

// Config wires the oracle.
type Config struct {
	RouterA common.Address
	RouterB common.Address

	// WrappedNative is the hop used when no direct stable route exists.
	WrappedNative common.Address

	// Stable denominates all USD prices; one stable unit is one dollar.
	Stable common.Address

	PriceOverrides   map[common.Address]float64
	ReserveOverrides map[common.Address]entity.ReserveParams

	Logger *slog.Logger
}

// Service answers price, decimals and reserve-parameter lookups.
type Service struct {
	config Config
	quoter Quoter
	tokens DecimalsReader
	logger *slog.Logger

	mu       sync.Mutex
	decimals map[common.Address]int
}

// New wires a Service. Overrides maps may be nil.
func New(config Config, quoter Quoter, tokens DecimalsReader) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:   config,
		quoter:   quoter,
		tokens:   tokens,
		logger:   logger.With("component", "price_oracle"),
		decimals: make(map[common.Address]int),
	}
}

// PriceUSD resolves a token's dollar price. Configured overrides win;
// otherwise one whole token unit is quoted into the stable, directly or via
// the wrapped native token. Unpriceable tokens fall back to 1.0 so sizing
// degrades instead of dividing by zero.
func (s *Service) PriceUSD(ctx context.Context, token common.Address) float64 {
	if price, ok := s.config.PriceOverrides[token]; ok {
		return price
	}
	if token == s.config.Stable {
		return 1.0
	}

	oneUnit := pow10(s.Decimals(ctx, token))

	if out := s.quote(ctx, []common.Address{token, s.config.Stable}, oneUnit); out.Sign() > 0 {
		return s.stableToUSD(ctx, out)
	}

	toNative := s.quote(ctx, []common.Address{token, s.config.WrappedNative}, oneUnit)
	if toNative.Sign() > 0 {
		if out := s.quote(ctx, []common.Address{s.config.WrappedNative, s.config.Stable}, toNative); out.Sign() > 0 {
			return s.stableToUSD(ctx, out)
		}
	}

	s.logger.Debug("no route to stable, assuming parity", "token", token)
	return 1.0
}

// Decimals returns a token's decimals, cached for the process lifetime.
// Unreadable tokens are pinned to 18.
func (s *Service) Decimals(ctx context.Context, token common.Address) int {
	s.mu.Lock()
	dec, ok := s.decimals[token]
	s.mu.Unlock()
	if ok {
		return dec
	}

	dec, err := s.tokens.Decimals(ctx, token)
	if err != nil || dec <= 0 {
		if err != nil {
			s.logger.Debug("reading decimals", "token", token, "error", err)
		}
		dec = 18
	}

	s.mu.Lock()
	s.decimals[token] = dec
	s.mu.Unlock()
	return dec
}

// ReserveParams returns the liquidation parameters for a debt asset:
// configured override or protocol defaults.
func (s *Service) ReserveParams(token common.Address) entity.ReserveParams {
	if params, ok := s.config.ReserveOverrides[token]; ok {
		return params
	}
	return entity.DefaultReserveParams()
}

// quote returns the path output from router A, falling back to router B.
// Errors downgrade to zero.
func (s *Service) quote(ctx context.Context, path []common.Address, amountIn *big.Int) *big.Int {
	out, err := s.quoter.QuoteAmountsOut(ctx, s.config.RouterA, path, amountIn)
	if err == nil && out.Sign() > 0 {
		return out
	}
	out, err = s.quoter.QuoteAmountsOut(ctx, s.config.RouterB, path, amountIn)
	if err != nil {
		return new(big.Int)
	}
	return out
}

func (s *Service) stableToUSD(ctx context.Context, stableUnits *big.Int) float64 {
	unit := math.Pow10(s.Decimals(ctx, s.config.Stable))
	price, _ := new(big.Float).Quo(new(big.Float).SetInt(stableUnits), big.NewFloat(unit)).Float64()
	return price
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
