// Package app assembles the pipeline and drives it once per block: scan the
// monitored borrowers, prestage calldata for positions approaching the bar,
// hand liquidatable pairs to the worker pool, then sweep residual profits.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/pkg/workerpool"
	"github.com/archon-research/liquidator/internal/ports/outbound"
	"github.com/archon-research/liquidator/internal/services/hf_scanner"
	"github.com/archon-research/liquidator/internal/services/liquidation"
)

// HealthScanner reads health factors for a set of borrowers. The hf_scanner
// service satisfies it.
type HealthScanner interface {
	FetchHealthFactors(ctx context.Context, users []common.Address) []hf_scanner.Result
}

// Liquidator prestages and executes liquidation attempts. The liquidation
// manager satisfies it.
type Liquidator interface {
	PrecomputeCalldataFor(user, debt, collateral common.Address)
	ExecuteAtomic(ctx context.Context, target entity.LiquidationTarget, maxSlippageBps float64) entity.ExecutionResult
}

// TaskQueue admits liquidation tasks for asynchronous execution.
type TaskQueue interface {
	Enqueue(task workerpool.Task) bool
}

// QuoteCaches pins the per-block quote caches to the current head.
type QuoteCaches interface {
	SetBlock(blockNumber uint64)
}

// ProfitSweeper converts residual token balances into the stable asset.
type ProfitSweeper interface {
	Consolidate(ctx context.Context) (common.Hash, bool)
}

// Reporter pushes periodic attempt summaries to operators.
type Reporter interface {
	MaybeSendHourlyReport(ctx context.Context)
}

// SystemConfig holds the scan set and the sizing knobs stamped onto
// dispatched targets.
type SystemConfig struct {
	MonitorUsers     []common.Address
	DebtAssets       []common.Address
	CollateralAssets []common.Address

	// MinLiqUSD is the advisory notional attached to every dispatched
	// target; the planner re-sizes from reserve parameters.
	MinLiqUSD float64

	MaxSlippageBps     float64
	HFPrecomputeBuffer float64

	Logger *slog.Logger
}

// System owns the per-block tick. It holds no network code of its own; every
// side effect goes through an injected collaborator.
type System struct {
	config    SystemConfig
	stream    outbound.BlockStream
	scanner   HealthScanner
	watchlist *liquidation.Watchlist

	liquidator Liquidator
	queue      TaskQueue
	quotes     QuoteCaches
	sweeper    ProfitSweeper
	reporter   Reporter // nil when no notifier is configured

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewSystem validates the wiring and returns a System. reporter may be nil;
// everything else is required.
func NewSystem(
	config SystemConfig,
	stream outbound.BlockStream,
	scanner HealthScanner,
	liquidator Liquidator,
	queue TaskQueue,
	quotes QuoteCaches,
	sweeper ProfitSweeper,
	reporter Reporter,
) (*System, error) {
	if stream == nil {
		return nil, errors.New("app: block stream is required")
	}
	if scanner == nil {
		return nil, errors.New("app: health scanner is required")
	}
	if liquidator == nil {
		return nil, errors.New("app: liquidator is required")
	}
	if queue == nil {
		return nil, errors.New("app: task queue is required")
	}
	if quotes == nil {
		return nil, errors.New("app: quote caches are required")
	}
	if sweeper == nil {
		return nil, errors.New("app: profit sweeper is required")
	}
	if len(config.DebtAssets) == 0 {
		return nil, errors.New("app: at least one debt asset is required")
	}
	if len(config.CollateralAssets) == 0 {
		return nil, errors.New("app: at least one collateral asset is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		config:     config,
		stream:     stream,
		scanner:    scanner,
		watchlist:  liquidation.NewWatchlist(),
		liquidator: liquidator,
		queue:      queue,
		quotes:     quotes,
		sweeper:    sweeper,
		reporter:   reporter,
		logger:     logger.With("component", "system"),
	}, nil
}

// Start begins block-driven operation. It returns once the stream is up;
// ticks run on the stream's dispatch goroutine.
func (s *System) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if len(s.config.MonitorUsers) == 0 {
		s.logger.Warn("no monitored users configured, scans will be empty")
	}
	if err := s.stream.Start(s.OnBlock); err != nil {
		return fmt.Errorf("starting block stream: %w", err)
	}
	s.logger.Info("system started",
		"monitored_users", len(s.config.MonitorUsers),
		"debt_assets", len(s.config.DebtAssets),
		"collateral_assets", len(s.config.CollateralAssets))
	return nil
}

// Stop cancels in-flight ticks and halts the block stream. Tasks already
// queued still run; draining the pool is the caller's shutdown step.
func (s *System) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.stream.Stop()
}

// OnBlock runs one scan tick. It satisfies outbound.BlockCallback: block
// numbers arrive strictly increasing on a single goroutine, so the tick
// never races itself. Liquidation work is handed to the queue; only quoting
// and the profit sweep run inline.
func (s *System) OnBlock(blockNumber uint64) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s.quotes.SetBlock(blockNumber)

	var prestaged, dispatched int
	if len(s.config.MonitorUsers) > 0 {
		results := s.scanner.FetchHealthFactors(ctx, s.config.MonitorUsers)

		prestage := s.watchlist.UpsertAndSelectForPrestage(s.pairEntries(results), s.config.HFPrecomputeBuffer)
		for _, entry := range prestage {
			pos := entry.Position
			s.liquidator.PrecomputeCalldataFor(pos.User, pos.Debt, pos.Collateral)
		}
		prestaged = len(prestage)

		for _, res := range results {
			if res.HF > 0 && res.HF < 1.0 {
				s.logger.Info("borrower below liquidation threshold", "user", res.User, "health_factor", res.HF)
			}
		}

		for _, entry := range s.watchlist.CollectTriggers() {
			target := entity.LiquidationTarget{
				User:       entry.Position.User,
				Debt:       entry.Position.Debt,
				Collateral: entry.Position.Collateral,
				USDValue:   entry.Position.USDValue,
			}
			maxSlippageBps := s.config.MaxSlippageBps
			accepted := s.queue.Enqueue(func() {
				s.liquidator.ExecuteAtomic(ctx, target, maxSlippageBps)
			})
			if !accepted {
				s.logger.Warn("task queue rejected liquidation",
					"user", target.User, "debt", target.Debt, "collateral", target.Collateral)
				continue
			}
			dispatched++
		}
	}

	s.logger.Debug("block tick",
		"block", blockNumber, "prestaged_pairs", prestaged, "dispatched_tasks", dispatched)

	s.sweeper.Consolidate(ctx)

	if s.reporter != nil {
		s.reporter.MaybeSendHourlyReport(ctx)
	}
}

// pairEntries fans each scan result out to every configured
// (debt, collateral) pair, skipping same-asset pairs.
func (s *System) pairEntries(results []hf_scanner.Result) []liquidation.WatchEntry {
	entries := make([]liquidation.WatchEntry, 0, len(results)*len(s.config.DebtAssets)*len(s.config.CollateralAssets))
	for _, res := range results {
		for _, debt := range s.config.DebtAssets {
			for _, collateral := range s.config.CollateralAssets {
				if debt == collateral {
					continue
				}
				entries = append(entries, liquidation.WatchEntry{
					Position: entity.BorrowerPosition{
						User:         res.User,
						HealthFactor: res.HF,
						Debt:         debt,
						Collateral:   collateral,
						USDValue:     s.config.MinLiqUSD,
					},
				})
			}
		}
	}
	return entries
}
