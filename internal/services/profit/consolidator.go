// Package profit sweeps residual token balances left on the signer by past
// liquidations into the stable asset. One sweep per tick, no replacement:
// anything that misses simply waits for the next pass.
package profit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/domain/entity"
)

const (
	// swapGasLimit covers a single-hop V2 swap with headroom.
	swapGasLimit = 280_000

	deadlineSeconds = 180
)

// BalanceReader reads token metadata and balances. The erc20 reader serves
// it in production.
type BalanceReader interface {
	Decimals(ctx context.Context, token common.Address) (int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Pricer values a token in USD for the dust gate.
type Pricer interface {
	PriceUSD(ctx context.Context, token common.Address) float64
}

// SwapQuoter quotes and encodes single-hop router swaps.
type SwapQuoter interface {
	QuoteAmountsOut(ctx context.Context, router common.Address, path []common.Address, amountIn *big.Int) (*big.Int, error)
	SwapCalldata(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error)
}

// GasQuoter prices the sweep transaction.
type GasQuoter interface {
	Quote(ctx context.Context) entity.GasQuote
}

// Signer signs the sweep and owns the balances being swept.
type Signer interface {
	Address() common.Address
	SignTx(fields entity.TransactionFields) (string, common.Hash, error)
}

// NonceSource hands out the sender nonce.
type NonceSource interface {
	Next(ctx context.Context) (uint64, error)
}

// TxSender submits the raw transaction, privately when asked.
type TxSender interface {
	SendRawTransaction(ctx context.Context, rawTx string, private bool) (common.Hash, error)
	HasPrivate() bool
}

// Guard carries the submission-side MEV settings.
type Guard interface {
	UsePrivateTx() bool
	SubmitDelay() time.Duration
	ShouldAbortForSandwichRisk(priceImpactBps float64) bool
}

// Config wires a Consolidator.
type Config struct {
	ChainID uint64

	// Tokens are the assets swept each tick. The stable itself is skipped.
	Tokens []common.Address
	Stable common.Address

	// Router is the venue the sweep swaps on.
	Router common.Address

	// MinSwapUSD is the dust gate; balances worth less stay put.
	MinSwapUSD float64

	MaxSlippageBps float64

	Logger *slog.Logger
}

// Consolidator performs at most one sweep swap per call.
type Consolidator struct {
	config    Config
	balances  BalanceReader
	pricer    Pricer
	quoter    SwapQuoter
	gas       GasQuoter
	signer    Signer
	nonces    NonceSource
	sender    TxSender
	protector Guard
	logger    *slog.Logger
}

// New wires a Consolidator. All collaborators are required.
func New(config Config, balances BalanceReader, pricer Pricer, quoter SwapQuoter, gas GasQuoter, signer Signer, nonces NonceSource, sender TxSender, protector Guard) (*Consolidator, error) {
	if balances == nil {
		return nil, fmt.Errorf("profit: balance reader is required")
	}
	if pricer == nil {
		return nil, fmt.Errorf("profit: pricer is required")
	}
	if quoter == nil {
		return nil, fmt.Errorf("profit: swap quoter is required")
	}
	if gas == nil {
		return nil, fmt.Errorf("profit: gas quoter is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("profit: signer is required")
	}
	if nonces == nil {
		return nil, fmt.Errorf("profit: nonce source is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("profit: tx sender is required")
	}
	if protector == nil {
		return nil, fmt.Errorf("profit: guard is required")
	}
	if config.MinSwapUSD <= 0 {
		config.MinSwapUSD = 50
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{
		config:    config,
		balances:  balances,
		pricer:    pricer,
		quoter:    quoter,
		gas:       gas,
		signer:    signer,
		nonces:    nonces,
		sender:    sender,
		protector: protector,
		logger:    logger.With("component", "profit_consolidator"),
	}, nil
}

// Consolidate walks the configured tokens and swaps the first balance worth
// sweeping into the stable. Tokens that cannot be read, priced, quoted or
// signed are passed over; the pass ends after the first submission. It
// returns the submitted transaction hash, or false when nothing was sent.
func (c *Consolidator) Consolidate(ctx context.Context) (common.Hash, bool) {
	owner := c.signer.Address()
	for _, token := range c.config.Tokens {
		if token == c.config.Stable {
			continue
		}

		decimals, err := c.balances.Decimals(ctx, token)
		if err != nil || decimals <= 0 {
			if err != nil {
				c.logger.Debug("reading decimals", "token", token.Hex(), "error", err)
			}
			continue
		}
		balance, err := c.balances.BalanceOf(ctx, token, owner)
		if err != nil {
			c.logger.Debug("reading balance", "token", token.Hex(), "error", err)
			continue
		}
		if balance.Sign() == 0 {
			continue
		}

		usdValue := unitsToUSD(balance, decimals) * c.pricer.PriceUSD(ctx, token)
		if usdValue < c.config.MinSwapUSD {
			continue
		}

		path := []common.Address{token, c.config.Stable}
		quoted, err := c.quoter.QuoteAmountsOut(ctx, c.config.Router, path, balance)
		if err != nil || quoted.Sign() == 0 {
			if err != nil {
				c.logger.Debug("quoting sweep", "token", token.Hex(), "error", err)
			}
			continue
		}
		if impact := c.priceImpactBps(ctx, usdValue, quoted); c.protector.ShouldAbortForSandwichRisk(impact) {
			c.logger.Debug("sweep price impact too large",
				"token", token.Hex(), "usd_value", usdValue, "impact_bps", impact)
			continue
		}

		raw, hash, err := c.buildSweep(ctx, path, balance, quoted)
		if err != nil {
			c.logger.Debug("building sweep", "token", token.Hex(), "error", err)
			continue
		}

		sent, err := c.submit(ctx, raw)
		if err != nil {
			c.logger.Warn("profit sweep failed",
				"token", token.Hex(), "usd_value", usdValue, "error", err)
			return common.Hash{}, false
		}
		if sent != (common.Hash{}) {
			hash = sent
		}
		c.logger.Info("profit sweep submitted",
			"token", token.Hex(), "usd_value", usdValue, "tx_hash", hash.Hex())
		return hash, true
	}
	return common.Hash{}, false
}

// buildSweep encodes and signs one token -> stable swap.
func (c *Consolidator) buildSweep(ctx context.Context, path []common.Address, balance, quoted *big.Int) (string, common.Hash, error) {
	outMin := slippageFloor(quoted, c.config.MaxSlippageBps)
	deadline := big.NewInt(time.Now().Unix() + deadlineSeconds)
	calldata, err := c.quoter.SwapCalldata(balance, outMin, path, c.signer.Address(), deadline)
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("encoding sweep: %w", err)
	}

	nonce, err := c.nonces.Next(ctx)
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("reserving nonce: %w", err)
	}
	quote := c.gas.Quote(ctx)
	raw, hash, err := c.signer.SignTx(entity.TransactionFields{
		ChainID:              c.config.ChainID,
		Nonce:                nonce,
		GasLimit:             swapGasLimit,
		MaxFeePerGas:         quote.MaxFeePerGas,
		MaxPriorityFeePerGas: quote.MaxPriorityFeePerGas,
		To:                   c.config.Router,
		Value:                new(big.Int),
		Data:                 calldata,
	})
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("signing sweep: %w", err)
	}
	return raw, hash, nil
}

// priceImpactBps measures how far the quoted stable output falls short of
// the oracle valuation of the swept balance. Unreadable stable metadata
// yields zero so the sweep is never blocked on missing data.
func (c *Consolidator) priceImpactBps(ctx context.Context, usdValue float64, quoted *big.Int) float64 {
	if usdValue <= 0 {
		return 0
	}
	stableDecimals, err := c.balances.Decimals(ctx, c.config.Stable)
	if err != nil || stableDecimals <= 0 {
		return 0
	}
	realizedUSD := unitsToUSD(quoted, stableDecimals)
	if realizedUSD >= usdValue {
		return 0
	}
	return (usdValue - realizedUSD) / usdValue * 10000
}

func (c *Consolidator) submit(ctx context.Context, raw string) (common.Hash, error) {
	private := c.protector.UsePrivateTx() && c.sender.HasPrivate()
	if private {
		if delay := c.protector.SubmitDelay(); delay > 0 {
			select {
			case <-ctx.Done():
				return common.Hash{}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return c.sender.SendRawTransaction(ctx, raw, private)
}

// slippageFloor discounts a quote by bps, carried in hundredths of a basis
// point so fractional settings survive.
func slippageFloor(quoted *big.Int, bps float64) *big.Int {
	centi := int64(math.Round(bps * 100))
	if centi < 0 {
		centi = 0
	}
	if centi > 1_000_000 {
		centi = 1_000_000
	}
	out := new(big.Int).Mul(quoted, big.NewInt(1_000_000-centi))
	return out.Quo(out, big.NewInt(1_000_000))
}

func unitsToUSD(units *big.Int, decimals int) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(units), scale).Float64()
	return value
}
