// Package liquidation sizes, quotes, guards and submits Aave v3
// liquidations. The Manager drives one attempt end to end: it freezes a
// per-block Snapshot of prices and gas, hands it to the Planner, and passes
// the planned transaction to the Executor unless the run is dry. It also
// pre-stages executor calldata for positions drifting toward their
// threshold so the hot path skips ABI encoding.
package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/csvlog"
	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/ports/outbound"
)

// swapDeadlineSeconds is how far in the future router deadlines are set.
const swapDeadlineSeconds = 180

// MarketOracle is the price view a snapshot is frozen from.
type MarketOracle interface {
	PriceUSD(ctx context.Context, token common.Address) float64
	Decimals(ctx context.Context, token common.Address) int
	ReserveParams(token common.Address) entity.ReserveParams
}

// GasQuoter prices the next transaction.
type GasQuoter interface {
	Quote(ctx context.Context) entity.GasQuote
}

// BlockGauge reports the block number quotes are pinned to.
type BlockGauge interface {
	CurrentBlock() uint64
}

// AttemptNotifier aggregates attempt stats and pushes alerts. The telegram
// notifier satisfies it.
type AttemptNotifier interface {
	outbound.Notifier
	AccumulateAttempt(completed bool, profitUSDC float64)
}

// ManagerConfig carries run-mode flags and the identity fields stamped onto
// accounting records.
type ManagerConfig struct {
	DryRun bool

	ChainID        int64
	Executor       common.Address
	ProfitReceiver common.Address
	WrappedNative  common.Address
	RPCEndpoint    string
	SubmitPrivate  bool

	Logger *slog.Logger
}

// Manager coordinates one liquidation attempt per call. Safe for concurrent
// use; each attempt works off its own Snapshot.
type Manager struct {
	config   ManagerConfig
	planner  *Planner
	executor *Executor
	oracle   MarketOracle
	gas      GasQuoter
	blocks   BlockGauge
	builder  *CalldataBuilder
	cache    *PrecomputeCache
	csv      *csvlog.Logger
	notifier AttemptNotifier
	logger   *slog.Logger
}

// NewManager wires the manager. csv and notifier may be nil; everything
// else is required.
func NewManager(
	config ManagerConfig,
	planner *Planner,
	executor *Executor,
	oracle MarketOracle,
	gas GasQuoter,
	blocks BlockGauge,
	builder *CalldataBuilder,
	cache *PrecomputeCache,
	csv *csvlog.Logger,
	notifier AttemptNotifier,
) (*Manager, error) {
	if planner == nil {
		return nil, errors.New("liquidation: planner is required")
	}
	if executor == nil {
		return nil, errors.New("liquidation: executor is required")
	}
	if oracle == nil {
		return nil, errors.New("liquidation: market oracle is required")
	}
	if gas == nil {
		return nil, errors.New("liquidation: gas quoter is required")
	}
	if blocks == nil {
		return nil, errors.New("liquidation: block gauge is required")
	}
	if builder == nil {
		return nil, errors.New("liquidation: calldata builder is required")
	}
	if cache == nil {
		cache = NewPrecomputeCache()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:   config,
		planner:  planner,
		executor: executor,
		oracle:   oracle,
		gas:      gas,
		blocks:   blocks,
		builder:  builder,
		cache:    cache,
		csv:      csv,
		notifier: notifier,
		logger:   logger.With("component", "liquidation_manager"),
	}, nil
}

// ExecuteAtomic runs one flash-loan liquidation of target: snapshot, plan,
// profit guard, then submission (skipped on dry runs). It never panics and
// always returns a result the caller can log.
func (m *Manager) ExecuteAtomic(ctx context.Context, target entity.LiquidationTarget, maxSlippageBps float64) entity.ExecutionResult {
	snap := m.buildSnapshot(ctx, target, maxSlippageBps)
	planned, skip, err := m.planner.Plan(ctx, snap)
	if err != nil {
		m.logger.Error("planning failed", "user", target.User.Hex(), "pair", target.Pair(), "error", err)
		return entity.ExecutionResult{Err: err}
	}
	if skip != SkipNone {
		if skip == SkipBelowMinimum {
			m.logger.Debug("target below minimum size", "user", target.User.Hex(), "usd_value", target.USDValue)
		}
		return entity.ExecutionResult{Skipped: true, SkipReason: string(skip)}
	}
	return m.submitPlanned(ctx, snap, planned)
}

// ExecuteBatch liquidates several positions of one (debt, collateral) pair
// in a single transaction. All targets must share the pair of the first.
func (m *Manager) ExecuteBatch(ctx context.Context, targets []entity.LiquidationTarget, maxSlippageBps float64) entity.ExecutionResult {
	if len(targets) == 0 {
		return entity.ExecutionResult{Err: errors.New("liquidation: empty batch")}
	}
	snap := m.buildSnapshot(ctx, targets[0], maxSlippageBps)
	planned, skip, err := m.planner.PlanBatch(ctx, snap, targets)
	if err != nil {
		m.logger.Error("batch planning failed", "pair", targets[0].Pair(), "targets", len(targets), "error", err)
		return entity.ExecutionResult{Err: err}
	}
	if skip != SkipNone {
		return entity.ExecutionResult{Skipped: true, SkipReason: string(skip)}
	}
	return m.submitPlanned(ctx, snap, planned)
}

// PrecomputeCalldataFor encodes and caches the executor call for a position
// nearing its threshold. debtToCover is left zero and sized at execution
// time; the entry is immutable once stored.
func (m *Manager) PrecomputeCalldataFor(user, debt, collateral common.Address) {
	key := PrecomputeKey(user, debt, collateral)
	if _, ok := m.cache.Get(key); ok {
		return
	}
	params := entity.ExecutorParams{
		User:            user,
		DebtAsset:       debt,
		DebtToCover:     new(big.Int),
		CollateralAsset: collateral,
		ProfitReceiver:  m.config.ProfitReceiver,
		MinProfit:       big.NewInt(1),
	}
	calldata, err := m.builder.LiquidateAndArb(params)
	if err != nil {
		m.logger.Warn("precompute encoding failed", "user", user.Hex(), "error", err)
		return
	}
	m.cache.Put(key, calldata)
	m.logger.Debug("prestaged calldata", "user", user.Hex(), "debt", debt.Hex(), "collateral", collateral.Hex())
}

// Precomputed returns the pre-staged calldata for the position, if any.
func (m *Manager) Precomputed(user, debt, collateral common.Address) ([]byte, bool) {
	return m.cache.Get(PrecomputeKey(user, debt, collateral))
}

// buildSnapshot freezes everything planning reads: prices, decimals,
// reserve params of the debt asset, a gas quote and the current block.
func (m *Manager) buildSnapshot(ctx context.Context, target entity.LiquidationTarget, maxSlippageBps float64) Snapshot {
	return Snapshot{
		Block:          m.blocks.CurrentBlock(),
		Target:         target,
		DebtDecimals:   m.oracle.Decimals(ctx, target.Debt),
		CollatDecimals: m.oracle.Decimals(ctx, target.Collateral),
		DebtPriceUSD:   m.oracle.PriceUSD(ctx, target.Debt),
		CollatPriceUSD: m.oracle.PriceUSD(ctx, target.Collateral),
		Reserve:        m.oracle.ReserveParams(target.Debt),
		Gas:            m.gas.Quote(ctx),
		MaxSlippageBps: maxSlippageBps,
		Deadline:       big.NewInt(time.Now().Unix() + swapDeadlineSeconds),
	}
}

func (m *Manager) submitPlanned(ctx context.Context, snap Snapshot, planned *PlannedTx) entity.ExecutionResult {
	record := m.accountingRecord(ctx, snap, planned)

	if m.config.DryRun {
		record.DryRun = true
		record.ProfitUSDC = m.estimatedProfitUSD(snap, planned)
		if m.csv != nil {
			m.csv.LogSuccess(record)
		}
		m.logger.Info("dry run, not submitting",
			"pair", planned.Target.Pair(),
			"repay_usd", planned.RepayUSD,
			"amount_out_min", planned.AmountOutMin,
			"required_units", planned.RequiredUnits)
		return entity.ExecutionResult{Success: true}
	}

	if m.csv != nil {
		m.csv.LogAttempt(record)
	}
	result := m.executor.Submit(ctx, planned)
	if result.TxHash != (common.Hash{}) {
		record.TxHash = result.TxHash.Hex()
	}
	if result.Success {
		profitUSD := m.estimatedProfitUSD(snap, planned)
		record.ProfitUSDC = profitUSD
		if m.csv != nil {
			m.csv.LogSuccess(record)
		}
		if m.notifier != nil {
			m.notifier.AccumulateAttempt(true, profitUSD)
			m.notifier.Notify(ctx, fmt.Sprintf("Liquidated %s (%s) for ~$%.2f, tx %s",
				planned.Target.User.Hex(), planned.Target.Pair(), planned.RepayUSD, result.TxHash.Hex()))
		}
		m.logger.Info("liquidation mined",
			"tx_hash", result.TxHash.Hex(),
			"block", result.BlockNumber,
			"gas_used", result.GasUsed,
			"profit_usd_estimate", profitUSD)
	} else {
		reason := "no_receipt"
		if result.Err != nil {
			reason = result.Err.Error()
		}
		if m.csv != nil {
			m.csv.LogFailure(record, reason)
		}
		if m.notifier != nil {
			m.notifier.AccumulateAttempt(false, 0)
		}
		m.logger.Warn("liquidation failed", "pair", planned.Target.Pair(), "reason", reason)
	}
	return result
}

// accountingRecord maps a planned transaction onto the CSV schema. Gas cost
// is the worst case, limit times max fee.
func (m *Manager) accountingRecord(ctx context.Context, snap Snapshot, planned *PlannedTx) csvlog.Record {
	gasWei := new(big.Int).Mul(new(big.Int).SetUint64(planned.GasLimit), feeOrZero(planned.Gas.MaxFeePerGas))
	nativeUSD := m.oracle.PriceUSD(ctx, m.config.WrappedNative)

	gasStrategy := "base_x2_plus_tip"
	mevMode := "public"
	if m.config.SubmitPrivate {
		mevMode = "private"
	}

	return csvlog.Record{
		UserAddress:         planned.Target.User.Hex(),
		DebtAsset:           planned.Target.Debt.Hex(),
		CollateralAsset:     planned.Target.Collateral.Hex(),
		DebtAmount:          unitsToFloat(planned.DebtUnits, snap.DebtDecimals),
		CollateralAmount:    unitsToFloat(planned.CollatUnits, snap.CollatDecimals),
		DebtAmountUSD:       planned.RepayUSD,
		CollateralAmountUSD: planned.RepayUSD,
		LiquidationPremium:  float64(snap.Reserve.LiquidationBonusBps-10000) / 10000,
		GasCostWei:          gasWei,
		GasCostUSD:          unitsToFloat(gasWei, 18) * nativeUSD,
		ChainID:             m.config.ChainID,
		ExecutorAddress:     m.config.Executor.Hex(),
		GasStrategy:         gasStrategy,
		MEVProtection:       mevMode,
		RPCEndpoint:         m.config.RPCEndpoint,
		DryRun:              m.config.DryRun,
	}
}

// estimatedProfitUSD values the guard margin, the guaranteed output beyond
// the repayment floor, in USD.
func (m *Manager) estimatedProfitUSD(snap Snapshot, planned *PlannedTx) float64 {
	margin := new(big.Int).Sub(planned.AmountOutMin, planned.RequiredUnits)
	if margin.Sign() <= 0 {
		return 0
	}
	return unitsToFloat(margin, snap.DebtDecimals) * snap.DebtPriceUSD
}

// unitsToFloat converts integer token units to a float amount. Precision
// loss is fine here, the result only feeds accounting columns.
func unitsToFloat(units *big.Int, decimals int) float64 {
	if units == nil || units.Sign() == 0 {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(units), scale).Float64()
	return out
}
