// Package dex_router quotes and plans swaps across two Uniswap-V2 compatible
// venues. Pair addresses are cached for the process lifetime; reserves and
// quotes are cached for a single block and read through an atomic
// current-block gauge, so a task that outruns the chain head sees zeros
// instead of stale numbers.
package dex_router

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/pkg/blockchain/abis"
)

// Venue is one V2-compatible exchange: a router for quoting and swapping and
// its pair factory.
type Venue struct {
	Name    string
	Router  common.Address
	Factory common.Address
}

// Leg assigns a fraction of a swap to one venue's router.
type Leg struct {
	Router   common.Address
	Fraction float64
}

// Config wires a Planner. VenueA is preferred when quotes tie.
type Config struct {
	RPC    *chainrpc.Client
	VenueA Venue
	VenueB Venue
	Logger *slog.Logger
}

// Planner serves pool quotes and split plans for the liquidation pipeline.
type Planner struct {
	config Config
	logger *slog.Logger

	routerABI  *abi.ABI
	factoryABI *abi.ABI
	pairABI    *abi.ABI

	currentBlock atomic.Uint64

	mu       sync.Mutex
	pairs    map[pairKey]common.Address
	reserves map[common.Address]reservesEntry
	quotes   map[quoteKey]quoteEntry
}

type pairKey struct {
	factory common.Address
	token0  common.Address
	token1  common.Address
}

// reservesEntry stores reserves in token0-first order for the block they
// were read at.
type reservesEntry struct {
	reserve0 *big.Int
	reserve1 *big.Int
	block    uint64
}

type quoteKey struct {
	router   common.Address
	path     string
	amountIn string
}

type quoteEntry struct {
	out   *big.Int
	block uint64
}

// New parses the V2 ABIs once and returns a Planner with empty caches.
func New(config Config) (*Planner, error) {
	if config.RPC == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	routerABI, err := abis.GetV2RouterABI()
	if err != nil {
		return nil, fmt.Errorf("parsing router ABI: %w", err)
	}
	factoryABI, err := abis.GetV2FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parsing factory ABI: %w", err)
	}
	pairABI, err := abis.GetV2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parsing pair ABI: %w", err)
	}

	return &Planner{
		config:     config,
		logger:     config.Logger.With("component", "dex_router"),
		routerABI:  routerABI,
		factoryABI: factoryABI,
		pairABI:    pairABI,
		pairs:      make(map[pairKey]common.Address),
		reserves:   make(map[common.Address]reservesEntry),
		quotes:     make(map[quoteKey]quoteEntry),
	}, nil
}

// VenueA returns the preferred venue.
func (p *Planner) VenueA() Venue { return p.config.VenueA }

// VenueB returns the secondary venue.
func (p *Planner) VenueB() Venue { return p.config.VenueB }

// SetBlock advances the current-block gauge. Cached reserves and quotes from
// earlier blocks become unreadable immediately.
func (p *Planner) SetBlock(blockNumber uint64) {
	p.currentBlock.Store(blockNumber)
}

// CurrentBlock returns the gauge value.
func (p *Planner) CurrentBlock() uint64 {
	return p.currentBlock.Load()
}

// PairAddress resolves the V2 pair for two tokens, caching results for the
// process lifetime. The zero address means no pair exists or the lookup
// failed.
func (p *Planner) PairAddress(ctx context.Context, factory, tokenA, tokenB common.Address) common.Address {
	key := newPairKey(factory, tokenA, tokenB)

	p.mu.Lock()
	pair, ok := p.pairs[key]
	p.mu.Unlock()
	if ok {
		return pair
	}

	data, err := p.factoryABI.Pack("getPair", key.token0, key.token1)
	if err != nil {
		p.logger.Debug("encoding getPair", "error", err)
		return common.Address{}
	}
	out, err := p.config.RPC.EthCall(ctx, factory, data, "latest")
	if err != nil {
		p.logger.Debug("calling getPair", "factory", factory, "error", err)
		return common.Address{}
	}
	values, err := p.factoryABI.Unpack("getPair", out)
	if err != nil {
		p.logger.Debug("decoding getPair result", "error", err)
		return common.Address{}
	}
	pair, _ = values[0].(common.Address)

	p.mu.Lock()
	p.pairs[key] = pair
	p.mu.Unlock()
	return pair
}

// Reserves returns the pool reserves aligned to (tokenIn, tokenOut) order at
// the given block. Both values are zero when the block is no longer current,
// the pair does not exist, or the read failed.
func (p *Planner) Reserves(ctx context.Context, factory, tokenIn, tokenOut common.Address, block uint64) (*big.Int, *big.Int) {
	zero := func() (*big.Int, *big.Int) { return new(big.Int), new(big.Int) }

	if block != p.currentBlock.Load() {
		return zero()
	}

	pair := p.PairAddress(ctx, factory, tokenIn, tokenOut)
	if pair == (common.Address{}) {
		return zero()
	}

	p.mu.Lock()
	entry, ok := p.reserves[pair]
	p.mu.Unlock()

	if !ok || entry.block != block {
		reserve0, reserve1, err := p.fetchReserves(ctx, pair)
		if err != nil {
			p.logger.Debug("reading reserves", "pair", pair, "error", err)
			return zero()
		}
		entry = reservesEntry{reserve0: reserve0, reserve1: reserve1, block: block}
		p.mu.Lock()
		p.reserves[pair] = entry
		p.mu.Unlock()
	}

	if tokenInIsToken0(tokenIn, tokenOut) {
		return new(big.Int).Set(entry.reserve0), new(big.Int).Set(entry.reserve1)
	}
	return new(big.Int).Set(entry.reserve1), new(big.Int).Set(entry.reserve0)
}

func (p *Planner) fetchReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	data, err := p.pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding getReserves: %w", err)
	}
	out, err := p.config.RPC.EthCall(ctx, pair, data, "latest")
	if err != nil {
		return nil, nil, fmt.Errorf("calling getReserves: %w", err)
	}
	values, err := p.pairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding getReserves: %w", err)
	}
	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("unexpected reserve types %T, %T", values[0], values[1])
	}
	return reserve0, reserve1, nil
}

// LocalQuote computes the constant-product output for a single-hop swap from
// cached reserves: out = (997*a*R_out) / (1000*R_in + 997*a). Zero when
// reserves are unavailable.
func (p *Planner) LocalQuote(ctx context.Context, factory, tokenIn, tokenOut common.Address, amountIn *big.Int, block uint64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int)
	}
	reserveIn, reserveOut := p.Reserves(ctx, factory, tokenIn, tokenOut, block)
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return new(big.Int)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(1000)), amountInWithFee)
	return numerator.Quo(numerator, denominator)
}

// QuoteAmountsOut asks a router for getAmountsOut and returns the final hop
// amount. Unlike the cached variants it surfaces errors to the caller.
func (p *Planner) QuoteAmountsOut(ctx context.Context, router common.Address, path []common.Address, amountIn *big.Int) (*big.Int, error) {
	data, err := p.routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("encoding getAmountsOut: %w", err)
	}
	out, err := p.config.RPC.EthCall(ctx, router, data, "latest")
	if err != nil {
		return nil, fmt.Errorf("calling getAmountsOut: %w", err)
	}
	values, err := p.routerABI.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("decoding getAmountsOut: %w", err)
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("getAmountsOut returned no amounts")
	}
	return amounts[len(amounts)-1], nil
}

// QuoteCached is QuoteAmountsOut behind the per-block cache. Zero means
// stale block, no route, or a failed call; failures are cached for the block
// so one venue outage does not hammer the node.
func (p *Planner) QuoteCached(ctx context.Context, router common.Address, path []common.Address, amountIn *big.Int, block uint64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int)
	}
	if block != p.currentBlock.Load() {
		return new(big.Int)
	}

	key := newQuoteKey(router, path, amountIn)
	p.mu.Lock()
	entry, ok := p.quotes[key]
	p.mu.Unlock()
	if ok && entry.block == block {
		return new(big.Int).Set(entry.out)
	}

	quoted, err := p.QuoteAmountsOut(ctx, router, path, amountIn)
	if err != nil {
		p.logger.Debug("router quote failed", "router", router, "error", err)
		quoted = new(big.Int)
	}

	p.mu.Lock()
	p.quotes[key] = quoteEntry{out: quoted, block: block}
	p.mu.Unlock()
	return new(big.Int).Set(quoted)
}

var splitRatios = [5][2]int64{{100, 0}, {75, 25}, {50, 50}, {25, 75}, {0, 100}}

// PlanSplit tries five input ratios across the two venues and returns the
// legs of the ratio with the highest total quoted output. Ties keep the
// earlier ratio, so a full VenueA route wins when nothing beats it.
func (p *Planner) PlanSplit(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, block uint64) []Leg {
	path := []common.Address{tokenIn, tokenOut}

	bestOut := new(big.Int)
	best := splitRatios[0]
	for _, ratio := range splitRatios {
		inA := new(big.Int).Div(new(big.Int).Mul(amountIn, big.NewInt(ratio[0])), big.NewInt(100))
		inB := new(big.Int).Sub(amountIn, inA)

		total := new(big.Int)
		if inA.Sign() > 0 {
			total.Add(total, p.QuoteCached(ctx, p.config.VenueA.Router, path, inA, block))
		}
		if inB.Sign() > 0 {
			total.Add(total, p.QuoteCached(ctx, p.config.VenueB.Router, path, inB, block))
		}
		if total.Cmp(bestOut) > 0 {
			bestOut = total
			best = ratio
		}
	}

	var legs []Leg
	if best[0] > 0 {
		legs = append(legs, Leg{Router: p.config.VenueA.Router, Fraction: float64(best[0]) / 100})
	}
	if best[1] > 0 {
		legs = append(legs, Leg{Router: p.config.VenueB.Router, Fraction: float64(best[1]) / 100})
	}
	return legs
}

// SwapCalldata encodes swapExactTokensForTokens for a router.
func (p *Planner) SwapCalldata(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := p.routerABI.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("encoding swapExactTokensForTokens: %w", err)
	}
	return data, nil
}

func newPairKey(factory, tokenA, tokenB common.Address) pairKey {
	if tokenInIsToken0(tokenA, tokenB) {
		return pairKey{factory: factory, token0: tokenA, token1: tokenB}
	}
	return pairKey{factory: factory, token0: tokenB, token1: tokenA}
}

// tokenInIsToken0 follows the V2 convention that token0 is the numerically
// smaller address.
func tokenInIsToken0(tokenIn, tokenOut common.Address) bool {
	return bytes.Compare(tokenIn.Bytes(), tokenOut.Bytes()) < 0
}

func newQuoteKey(router common.Address, path []common.Address, amountIn *big.Int) quoteKey {
	parts := make([]string, len(path))
	for i, hop := range path {
		parts[i] = hop.Hex()
	}
	return quoteKey{router: router, path: strings.Join(parts, ">"), amountIn: amountIn.String()}
}
