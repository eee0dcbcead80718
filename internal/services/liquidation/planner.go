package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/ports/outbound"
	"github.com/archon-research/liquidator/internal/services/dex_router"
	"github.com/archon-research/liquidator/internal/services/mev_guard"
)

// liquidationGasLimit covers the flash loan, the liquidation call and up to
// two swap legs.
const liquidationGasLimit = 1_900_000

// flashPremiumBps is the flash-loan fee, 9/10000 of the borrowed amount.
const flashPremiumBps = 9

// RouteQuoter serves venue metadata and per-block quotes. Production wiring
// uses the dex_router planner.
type RouteQuoter interface {
	VenueA() dex_router.Venue
	VenueB() dex_router.Venue
	LocalQuote(ctx context.Context, factory, tokenIn, tokenOut common.Address, amountIn *big.Int, block uint64) *big.Int
	QuoteCached(ctx context.Context, router common.Address, path []common.Address, amountIn *big.Int, block uint64) *big.Int
	PlanSplit(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, block uint64) []dex_router.Leg
	SwapCalldata(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error)
}

// PlannedTx is a fully sized, quoted and encoded liquidation, ready for the
// executor to stamp a nonce on, sign and submit.
type PlannedTx struct {
	Target      entity.LiquidationTarget
	RepayUSD    float64
	DebtUnits   *big.Int
	CollatUnits *big.Int

	// AmountOutMin is the swap-leg total; RequiredUnits is the floor it
	// cleared: debt + flash premium + gas in debt units.
	AmountOutMin  *big.Int
	RequiredUnits *big.Int

	Swaps    []entity.Swap
	Calldata []byte
	GasLimit uint64
	Gas      entity.GasQuote
}

// PlannerConfig carries the sizing window and the fixed addresses planning
// needs.
type PlannerConfig struct {
	MinLiqUSD       float64
	MaxLiqUSD       float64
	SplitTriggerUSD float64

	// WrappedNative and Stable anchor the gas-to-debt conversion quotes.
	WrappedNative common.Address
	Stable        common.Address

	// Executor receives the swap outputs and is the transaction target.
	Executor       common.Address
	ProfitReceiver common.Address

	Events outbound.EventSink
	Logger *slog.Logger
}

// Planner turns a Snapshot into a PlannedTx. Its only side effects are
// telemetry events and quote reads through the route quoter.
type Planner struct {
	config    PlannerConfig
	routes    RouteQuoter
	calldata  *CalldataBuilder
	protector *mev_guard.Protector
	events    outbound.EventSink
	logger    *slog.Logger
}

// NewPlanner validates the wiring and returns a Planner.
func NewPlanner(config PlannerConfig, routes RouteQuoter, calldata *CalldataBuilder, protector *mev_guard.Protector) (*Planner, error) {
	if routes == nil {
		return nil, errors.New("liquidation: route quoter is required")
	}
	if calldata == nil {
		return nil, errors.New("liquidation: calldata builder is required")
	}
	if protector == nil {
		return nil, errors.New("liquidation: mev protector is required")
	}
	if config.Executor == (common.Address{}) {
		return nil, errors.New("liquidation: executor address is required")
	}
	if config.ProfitReceiver == (common.Address{}) {
		return nil, errors.New("liquidation: profit receiver is required")
	}
	if config.Events == nil {
		config.Events = outbound.NopSink{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		config:    config,
		routes:    routes,
		calldata:  calldata,
		protector: protector,
		events:    config.Events,
		logger:    logger.With("component", "liquidation_planner"),
	}, nil
}

// Plan sizes the repay, quotes the collateral exit, applies the profit
// guard and encodes the executor call. A SkipReason other than SkipNone
// means the target was dropped deliberately; err means planning itself
// broke.
func (p *Planner) Plan(ctx context.Context, snap Snapshot) (*PlannedTx, SkipReason, error) {
	target := snap.Target

	repayUSD, ok := p.sizeRepayUSD(target.USDValue, snap.Reserve)
	if !ok {
		p.emitSkip(target, SkipBelowMinimum)
		return nil, SkipBelowMinimum, nil
	}
	debtUnits := usdToUnits(repayUSD, snap.DebtPriceUSD, snap.DebtDecimals)
	collatUnits := usdToUnits(repayUSD, snap.CollatPriceUSD, snap.CollatDecimals)
	if debtUnits.Sign() == 0 || collatUnits.Sign() == 0 {
		p.emitSkip(target, SkipBelowMinimum)
		return nil, SkipBelowMinimum, nil
	}

	exit, skip, err := p.planExit(ctx, snap, repayUSD, collatUnits)
	if err != nil || skip != SkipNone {
		return nil, skip, err
	}

	required := p.requiredUnits(ctx, snap, debtUnits)
	if exit.outMin.Cmp(required) <= 0 {
		p.emitSkip(target, SkipProfitGuard)
		return nil, SkipProfitGuard, nil
	}

	params := entity.ExecutorParams{
		User:            target.User,
		DebtAsset:       target.Debt,
		DebtToCover:     debtUnits,
		CollateralAsset: target.Collateral,
		Swaps:           exit.swaps,
		ProfitReceiver:  p.config.ProfitReceiver,
		MinProfit:       big.NewInt(1),
	}
	calldata, err := p.calldata.LiquidateAndArb(params)
	if err != nil {
		return nil, SkipNone, err
	}

	p.emitBuilt("single", target.Pair(), 1, debtUnits, exit.outMin)

	return &PlannedTx{
		Target:        target,
		RepayUSD:      repayUSD,
		DebtUnits:     debtUnits,
		CollatUnits:   collatUnits,
		AmountOutMin:  exit.outMin,
		RequiredUnits: required,
		Swaps:         exit.swaps,
		Calldata:      calldata,
		GasLimit:      liquidationGasLimit,
		Gas:           snap.Gas,
	}, SkipNone, nil
}

// PlanBatch sizes every target of one (debt, collateral) pair, exits the
// summed collateral in one swap plan and encodes the batch executor call.
// snap must be built from the first target.
func (p *Planner) PlanBatch(ctx context.Context, snap Snapshot, targets []entity.LiquidationTarget) (*PlannedTx, SkipReason, error) {
	if len(targets) == 0 {
		return nil, SkipNone, errors.New("liquidation: empty batch")
	}
	debt, collateral := targets[0].Debt, targets[0].Collateral

	users := make([]common.Address, 0, len(targets))
	debtToCover := make([]*big.Int, 0, len(targets))
	totalDebtUnits := new(big.Int)
	totalRepayUSD := 0.0
	for _, target := range targets {
		if target.Debt != debt || target.Collateral != collateral {
			return nil, SkipNone, fmt.Errorf("liquidation: batch pair mismatch, %s vs %s", target.Pair(), targets[0].Pair())
		}
		repayUSD, ok := p.sizeRepayUSD(target.USDValue, snap.Reserve)
		if !ok {
			continue
		}
		units := usdToUnits(repayUSD, snap.DebtPriceUSD, snap.DebtDecimals)
		if units.Sign() == 0 {
			continue
		}
		users = append(users, target.User)
		debtToCover = append(debtToCover, units)
		totalDebtUnits.Add(totalDebtUnits, units)
		totalRepayUSD += repayUSD
	}
	if len(users) == 0 {
		p.emitSkip(snap.Target, SkipBelowMinimum)
		return nil, SkipBelowMinimum, nil
	}
	collatUnits := usdToUnits(totalRepayUSD, snap.CollatPriceUSD, snap.CollatDecimals)
	if collatUnits.Sign() == 0 {
		p.emitSkip(snap.Target, SkipBelowMinimum)
		return nil, SkipBelowMinimum, nil
	}

	exit, skip, err := p.planExit(ctx, snap, totalRepayUSD, collatUnits)
	if err != nil || skip != SkipNone {
		return nil, skip, err
	}

	required := p.requiredUnits(ctx, snap, totalDebtUnits)
	if exit.outMin.Cmp(required) <= 0 {
		p.emitSkip(snap.Target, SkipProfitGuard)
		return nil, SkipProfitGuard, nil
	}

	params := entity.BatchExecutorParams{
		Users:           users,
		DebtAsset:       debt,
		DebtToCover:     debtToCover,
		CollateralAsset: collateral,
		Swaps:           exit.swaps,
		ProfitReceiver:  p.config.ProfitReceiver,
		MinProfit:       big.NewInt(1),
	}
	calldata, err := p.calldata.LiquidateBatchAndArb(params)
	if err != nil {
		return nil, SkipNone, err
	}

	p.emitBuilt("batch", snap.Target.Pair(), len(users), totalDebtUnits, exit.outMin)

	return &PlannedTx{
		Target:        snap.Target,
		RepayUSD:      totalRepayUSD,
		DebtUnits:     totalDebtUnits,
		CollatUnits:   collatUnits,
		AmountOutMin:  exit.outMin,
		RequiredUnits: required,
		Swaps:         exit.swaps,
		Calldata:      calldata,
		GasLimit:      liquidationGasLimit,
		Gas:           snap.Gas,
	}, SkipNone, nil
}

// sizeRepayUSD applies the close factor to the advisory notional and clamps
// the result into the configured USD window.
func (p *Planner) sizeRepayUSD(usdValue float64, reserve entity.ReserveParams) (float64, bool) {
	cappedUSD := usdValue * float64(reserve.CloseFactorBps) / 10000
	repayUSD := math.Min(p.config.MaxLiqUSD, math.Max(p.config.MinLiqUSD, cappedUSD))
	if repayUSD < p.config.MinLiqUSD {
		return 0, false
	}
	return repayUSD, true
}

// exitPlan is the swap side of a liquidation: the ordered legs and their
// guaranteed minimum output.
type exitPlan struct {
	swaps  []entity.Swap
	outMin *big.Int
}

// planExit quotes collateral → debt on both venues and builds the swap
// legs: a 2-leg split above the trigger notional, otherwise a single leg on
// the better venue (A preferred).
func (p *Planner) planExit(ctx context.Context, snap Snapshot, repayUSD float64, collatUnits *big.Int) (*exitPlan, SkipReason, error) {
	target := snap.Target
	venueA, venueB := p.routes.VenueA(), p.routes.VenueB()
	exitPath := []common.Address{target.Collateral, target.Debt}

	quoteA := p.routes.LocalQuote(ctx, venueA.Factory, target.Collateral, target.Debt, collatUnits, snap.Block)
	if quoteA.Sign() == 0 {
		quoteA = p.routes.QuoteCached(ctx, venueA.Router, exitPath, collatUnits, snap.Block)
	}
	quoteB := p.routes.LocalQuote(ctx, venueB.Factory, target.Collateral, target.Debt, collatUnits, snap.Block)
	if quoteB.Sign() == 0 {
		quoteB = p.routes.QuoteCached(ctx, venueB.Router, exitPath, collatUnits, snap.Block)
	}
	if quoteA.Sign() == 0 && quoteB.Sign() == 0 {
		p.emitSkip(target, SkipInsufficientLiquidity)
		return nil, SkipInsufficientLiquidity, nil
	}

	slip := p.protector.ClampSlippageBps(snap.MaxSlippageBps)

	var swaps []entity.Swap
	outMinTotal := new(big.Int)
	if repayUSD >= p.config.SplitTriggerUSD {
		legs := p.routes.PlanSplit(ctx, target.Collateral, target.Debt, collatUnits, snap.Block)
		remaining := new(big.Int).Set(collatUnits)
		for i, leg := range legs {
			inLeg := legInput(collatUnits, remaining, leg.Fraction, i == len(legs)-1)
			if inLeg.Sign() == 0 {
				continue
			}
			remaining.Sub(remaining, inLeg)
			quoted := p.routes.QuoteCached(ctx, leg.Router, exitPath, inLeg, snap.Block)
			outMin := applySlippage(quoted, slip)
			calldata, err := p.routes.SwapCalldata(inLeg, outMin, exitPath, p.config.Executor, snap.Deadline)
			if err != nil {
				return nil, SkipNone, fmt.Errorf("encoding split leg: %w", err)
			}
			swaps = append(swaps, entity.Swap{Router: leg.Router, CallData: calldata})
			outMinTotal.Add(outMinTotal, outMin)
		}
	}
	if len(swaps) == 0 {
		quoted, router := quoteA, venueA.Router
		if quoted.Sign() == 0 {
			quoted, router = quoteB, venueB.Router
		}
		outMin := applySlippage(quoted, slip)
		calldata, err := p.routes.SwapCalldata(collatUnits, outMin, exitPath, p.config.Executor, snap.Deadline)
		if err != nil {
			return nil, SkipNone, fmt.Errorf("encoding swap: %w", err)
		}
		swaps = []entity.Swap{{Router: router, CallData: calldata}}
		outMinTotal = outMin
	}

	selected := venueA.Name
	if quoteA.Sign() == 0 {
		selected = venueB.Name
	}
	p.events.Emit("route_quote", map[string]any{
		"pair":            target.Pair(),
		"amount_in_units": collatUnits,
		"quotes": []map[string]any{
			{"dex": venueA.Name, "out_units": quoteA},
			{"dex": venueB.Name, "out_units": quoteB},
		},
		"selected_dex": selected,
	})

	return &exitPlan{swaps: swaps, outMin: outMinTotal}, SkipNone, nil
}

// requiredUnits is the profit-guard floor: the flash loan repayment, its
// premium and the gas budget converted into debt units. The guaranteed swap
// output must strictly exceed it; equality is break-even and not worth the
// inclusion risk.
func (p *Planner) requiredUnits(ctx context.Context, snap Snapshot, debtUnits *big.Int) *big.Int {
	premium := new(big.Int).Mul(debtUnits, big.NewInt(flashPremiumBps))
	premium.Div(premium, big.NewInt(10000))
	gasWei := new(big.Int).Mul(big.NewInt(liquidationGasLimit), feeOrZero(snap.Gas.MaxFeePerGas))
	required := new(big.Int).Add(debtUnits, premium)
	return required.Add(required, p.gasInDebtUnits(ctx, snap.Target.Debt, gasWei, snap.Block))
}

// gasInDebtUnits converts a native gas budget into debt-asset units via
// live quotes: direct first, then through the stable.
func (p *Planner) gasInDebtUnits(ctx context.Context, debt common.Address, gasWei *big.Int, block uint64) *big.Int {
	if direct := p.quoteChain(ctx, p.config.WrappedNative, debt, gasWei, block); direct.Sign() > 0 {
		return direct
	}
	toStable := p.quoteChain(ctx, p.config.WrappedNative, p.config.Stable, gasWei, block)
	if toStable.Sign() == 0 {
		return new(big.Int)
	}
	return p.quoteChain(ctx, p.config.Stable, debt, toStable, block)
}

// quoteChain tries both venues' local reserves, then both routers.
func (p *Planner) quoteChain(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, block uint64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int)
	}
	venueA, venueB := p.routes.VenueA(), p.routes.VenueB()
	path := []common.Address{tokenIn, tokenOut}
	if q := p.routes.LocalQuote(ctx, venueA.Factory, tokenIn, tokenOut, amountIn, block); q.Sign() > 0 {
		return q
	}
	if q := p.routes.LocalQuote(ctx, venueB.Factory, tokenIn, tokenOut, amountIn, block); q.Sign() > 0 {
		return q
	}
	if q := p.routes.QuoteCached(ctx, venueA.Router, path, amountIn, block); q.Sign() > 0 {
		return q
	}
	return p.routes.QuoteCached(ctx, venueB.Router, path, amountIn, block)
}

func (p *Planner) emitSkip(target entity.LiquidationTarget, reason SkipReason) {
	p.events.Emit("skip_reason", map[string]any{
		"pair":      target.Pair(),
		"user":      target.User.Hex(),
		"usd_value": target.USDValue,
		"reason":    string(reason),
	})
}

func (p *Planner) emitBuilt(kind, pair string, usersCount int, debtUnits, outMin *big.Int) {
	p.events.Emit("tx_built", map[string]any{
		"tx_kind":              kind,
		"pair":                 pair,
		"users_count":          usersCount,
		"debt_units_total":     debtUnits,
		"amount_out_min_units": outMin,
	})
}

// usdToUnits converts a USD notional into token units at the given price.
// Non-positive prices fall back to parity so sizing still proceeds.
func usdToUnits(usd, priceUSD float64, decimals int) *big.Int {
	if priceUSD <= 0 {
		priceUSD = 1
	}
	scaled := new(big.Float).Mul(
		big.NewFloat(usd/priceUSD),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	)
	units, _ := scaled.Int(nil)
	if units.Sign() < 0 {
		return new(big.Int)
	}
	return units
}

// legInput sizes one split leg. The final leg takes whatever is left so the
// legs always sum to the full collateral amount.
func legInput(total, remaining *big.Int, fraction float64, last bool) *big.Int {
	if last {
		return new(big.Int).Set(remaining)
	}
	hundredths := int64(math.Round(fraction * 100))
	if hundredths <= 0 {
		return new(big.Int)
	}
	in := new(big.Int).Mul(total, big.NewInt(hundredths))
	in.Div(in, big.NewInt(100))
	if in.Cmp(remaining) > 0 {
		in.Set(remaining)
	}
	return in
}

// applySlippage discounts a quote by slipBps basis points, exact to a
// hundredth of a basis point, rounding down.
func applySlippage(quoted *big.Int, slipBps float64) *big.Int {
	if quoted == nil || quoted.Sign() <= 0 {
		return new(big.Int)
	}
	centi := int64(math.Round(slipBps * 100))
	if centi < 0 {
		centi = 0
	}
	if centi > 1_000_000 {
		centi = 1_000_000
	}
	out := new(big.Int).Mul(quoted, big.NewInt(1_000_000-centi))
	return out.Div(out, big.NewInt(1_000_000))
}

func feeOrZero(fee *big.Int) *big.Int {
	if fee == nil {
		return new(big.Int)
	}
	return fee
}
