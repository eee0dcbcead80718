package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/domain/entity"
	"github.com/archon-research/liquidator/internal/pkg/workerpool"
	"github.com/archon-research/liquidator/internal/ports/outbound"
	"github.com/archon-research/liquidator/internal/services/hf_scanner"
)

var (
	userOne   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	userTwo   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	debtAsset = common.HexToAddress("0x3333333333333333333333333333333333333333")
	collatA   = common.HexToAddress("0x4444444444444444444444444444444444444444")
	collatB   = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStream struct {
	started bool
	stopped bool
	cb      outbound.BlockCallback
}

func (f *fakeStream) Start(cb outbound.BlockCallback) error {
	f.started = true
	f.cb = cb
	return nil
}

func (f *fakeStream) Stop() { f.stopped = true }

type fakeScanner struct {
	results []hf_scanner.Result
	calls   int
}

func (f *fakeScanner) FetchHealthFactors(_ context.Context, _ []common.Address) []hf_scanner.Result {
	f.calls++
	return f.results
}

type pairCall struct {
	user       common.Address
	debt       common.Address
	collateral common.Address
}

type execCall struct {
	target entity.LiquidationTarget
	slip   float64
}

type fakeLiquidator struct {
	precomputed []pairCall
	executed    []execCall
}

func (f *fakeLiquidator) PrecomputeCalldataFor(user, debt, collateral common.Address) {
	f.precomputed = append(f.precomputed, pairCall{user, debt, collateral})
}

func (f *fakeLiquidator) ExecuteAtomic(_ context.Context, target entity.LiquidationTarget, maxSlippageBps float64) entity.ExecutionResult {
	f.executed = append(f.executed, execCall{target, maxSlippageBps})
	return entity.ExecutionResult{Success: true}
}

// inlineQueue runs accepted tasks synchronously so assertions see their
// effects immediately.
type inlineQueue struct {
	reject   bool
	accepted int
}

func (q *inlineQueue) Enqueue(task workerpool.Task) bool {
	if q.reject {
		return false
	}
	q.accepted++
	task()
	return true
}

type fakeQuotes struct {
	blocks []uint64
}

func (f *fakeQuotes) SetBlock(blockNumber uint64) { f.blocks = append(f.blocks, blockNumber) }

type fakeSweeper struct {
	calls int
}

func (f *fakeSweeper) Consolidate(context.Context) (common.Hash, bool) {
	f.calls++
	return common.Hash{}, false
}

type fakeReporter struct {
	calls int
}

func (f *fakeReporter) MaybeSendHourlyReport(context.Context) { f.calls++ }

type systemHarness struct {
	system     *System
	stream     *fakeStream
	scanner    *fakeScanner
	liquidator *fakeLiquidator
	queue      *inlineQueue
	quotes     *fakeQuotes
	sweeper    *fakeSweeper
	reporter   *fakeReporter
}

func defaultSystemConfig() SystemConfig {
	return SystemConfig{
		MonitorUsers:       []common.Address{userOne, userTwo},
		DebtAssets:         []common.Address{debtAsset},
		CollateralAssets:   []common.Address{collatA, collatB},
		MinLiqUSD:          100,
		MaxSlippageBps:     50,
		HFPrecomputeBuffer: 0.05,
		Logger:             testLogger(),
	}
}

func buildHarness(t *testing.T, config SystemConfig, results []hf_scanner.Result) *systemHarness {
	t.Helper()
	h := &systemHarness{
		stream:     &fakeStream{},
		scanner:    &fakeScanner{results: results},
		liquidator: &fakeLiquidator{},
		queue:      &inlineQueue{},
		quotes:     &fakeQuotes{},
		sweeper:    &fakeSweeper{},
		reporter:   &fakeReporter{},
	}
	system, err := NewSystem(config, h.stream, h.scanner, h.liquidator, h.queue, h.quotes, h.sweeper, h.reporter)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	if err := system.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(system.Stop)
	h.system = system
	return h
}

func newTestSystem(t *testing.T, results []hf_scanner.Result) *systemHarness {
	t.Helper()
	return buildHarness(t, defaultSystemConfig(), results)
}

func TestOnBlockDispatchesByThreshold(t *testing.T) {
	h := newTestSystem(t, []hf_scanner.Result{
		{User: userOne, HF: 0.95},
		{User: userTwo, HF: 1.03},
	})

	h.system.OnBlock(90_000_000)

	if len(h.quotes.blocks) != 1 || h.quotes.blocks[0] != 90_000_000 {
		t.Fatalf("quote cache blocks = %v, want [90000000]", h.quotes.blocks)
	}

	wantPrestage := []pairCall{
		{userOne, debtAsset, collatA},
		{userOne, debtAsset, collatB},
		{userTwo, debtAsset, collatA},
		{userTwo, debtAsset, collatB},
	}
	if len(h.liquidator.precomputed) != len(wantPrestage) {
		t.Fatalf("precomputed %d pairs, want %d", len(h.liquidator.precomputed), len(wantPrestage))
	}
	for i, want := range wantPrestage {
		if h.liquidator.precomputed[i] != want {
			t.Errorf("precomputed[%d] = %v, want %v", i, h.liquidator.precomputed[i], want)
		}
	}

	if len(h.liquidator.executed) != 2 {
		t.Fatalf("executed %d tasks, want 2", len(h.liquidator.executed))
	}
	for i, call := range h.liquidator.executed {
		if call.target.User != userOne {
			t.Errorf("executed[%d].User = %v, want %v", i, call.target.User, userOne)
		}
		if call.target.USDValue != 100 {
			t.Errorf("executed[%d].USDValue = %v, want 100", i, call.target.USDValue)
		}
		if call.slip != 50 {
			t.Errorf("executed[%d] slippage = %v, want 50", i, call.slip)
		}
	}
	if h.liquidator.executed[0].target.Collateral != collatA || h.liquidator.executed[1].target.Collateral != collatB {
		t.Errorf("executed collaterals = %v, %v, want %v, %v",
			h.liquidator.executed[0].target.Collateral, h.liquidator.executed[1].target.Collateral, collatA, collatB)
	}

	if h.sweeper.calls != 1 {
		t.Errorf("sweeper calls = %d, want 1", h.sweeper.calls)
	}
	if h.reporter.calls != 1 {
		t.Errorf("reporter calls = %d, want 1", h.reporter.calls)
	}
}

func TestOnBlockThresholdEdges(t *testing.T) {
	h := newTestSystem(t, []hf_scanner.Result{
		{User: userOne, HF: 1.05}, // exactly at the prestage bar: excluded
		{User: userTwo, HF: 1.0},  // exactly at the liquidation bar: prestage only
	})

	h.system.OnBlock(1)

	for _, call := range h.liquidator.precomputed {
		if call.user == userOne {
			t.Errorf("precomputed pair for user at the prestage bar: %v", call)
		}
	}
	if len(h.liquidator.precomputed) != 2 {
		t.Errorf("precomputed %d pairs, want 2", len(h.liquidator.precomputed))
	}
	if len(h.liquidator.executed) != 0 {
		t.Errorf("executed %d tasks, want 0", len(h.liquidator.executed))
	}
}

func TestOnBlockSkipsFailedReads(t *testing.T) {
	h := newTestSystem(t, []hf_scanner.Result{
		{User: userOne, HF: 0}, // read failure marker
	})

	h.system.OnBlock(1)

	if len(h.liquidator.precomputed) != 0 {
		t.Errorf("precomputed %d pairs for a failed read, want 0", len(h.liquidator.precomputed))
	}
	if len(h.liquidator.executed) != 0 {
		t.Errorf("executed %d tasks for a failed read, want 0", len(h.liquidator.executed))
	}
	if h.sweeper.calls != 1 {
		t.Errorf("sweeper calls = %d, want 1", h.sweeper.calls)
	}
}

func TestOnBlockSkipsSameAssetPairs(t *testing.T) {
	config := defaultSystemConfig()
	config.DebtAssets = []common.Address{debtAsset}
	config.CollateralAssets = []common.Address{debtAsset, collatA}
	h := buildHarness(t, config, []hf_scanner.Result{{User: userOne, HF: 0.9}})

	h.system.OnBlock(1)

	want := pairCall{userOne, debtAsset, collatA}
	if len(h.liquidator.precomputed) != 1 || h.liquidator.precomputed[0] != want {
		t.Errorf("precomputed = %v, want [%v]", h.liquidator.precomputed, want)
	}
	if len(h.liquidator.executed) != 1 {
		t.Fatalf("executed %d tasks, want 1", len(h.liquidator.executed))
	}
	if h.liquidator.executed[0].target.Collateral != collatA {
		t.Errorf("executed collateral = %v, want %v", h.liquidator.executed[0].target.Collateral, collatA)
	}
}

func TestOnBlockWatchlistCarriesAcrossBlocks(t *testing.T) {
	h := newTestSystem(t, []hf_scanner.Result{{User: userOne, HF: 1.03}})

	h.system.OnBlock(1)
	if got := len(h.liquidator.precomputed); got != 2 {
		t.Fatalf("precomputed after block 1 = %d, want 2", got)
	}

	// Position recovers: the entry stays tracked but nothing fires.
	h.scanner.results = []hf_scanner.Result{{User: userOne, HF: 1.2}}
	h.system.OnBlock(2)
	if got := len(h.liquidator.precomputed); got != 2 {
		t.Errorf("precomputed after recovery = %d, want 2", got)
	}
	if got := len(h.liquidator.executed); got != 0 {
		t.Errorf("executed after recovery = %d, want 0", got)
	}

	// Position collapses below the bar: both pairs dispatch.
	h.scanner.results = []hf_scanner.Result{{User: userOne, HF: 0.98}}
	h.system.OnBlock(3)
	if got := len(h.liquidator.executed); got != 2 {
		t.Errorf("executed after collapse = %d, want 2", got)
	}
	if h.sweeper.calls != 3 {
		t.Errorf("sweeper calls = %d, want 3", h.sweeper.calls)
	}
}

func TestOnBlockQueueRejection(t *testing.T) {
	h := newTestSystem(t, []hf_scanner.Result{{User: userOne, HF: 0.9}})
	h.queue.reject = true

	h.system.OnBlock(1)

	if h.queue.accepted != 0 {
		t.Errorf("accepted = %d, want 0", h.queue.accepted)
	}
	if len(h.liquidator.executed) != 0 {
		t.Errorf("executed %d tasks after rejection, want 0", len(h.liquidator.executed))
	}
	if h.sweeper.calls != 1 {
		t.Errorf("sweeper calls = %d, want 1", h.sweeper.calls)
	}
}

func TestOnBlockNoUsersSkipsScan(t *testing.T) {
	config := defaultSystemConfig()
	config.MonitorUsers = nil
	h := buildHarness(t, config, nil)

	h.system.OnBlock(1)

	if h.scanner.calls != 0 {
		t.Errorf("scanner calls = %d, want 0", h.scanner.calls)
	}
	if h.sweeper.calls != 1 {
		t.Errorf("sweeper calls = %d, want 1", h.sweeper.calls)
	}
}

func TestOnBlockWithoutReporter(t *testing.T) {
	h := &systemHarness{
		stream:     &fakeStream{},
		scanner:    &fakeScanner{},
		liquidator: &fakeLiquidator{},
		queue:      &inlineQueue{},
		quotes:     &fakeQuotes{},
		sweeper:    &fakeSweeper{},
	}
	system, err := NewSystem(defaultSystemConfig(), h.stream, h.scanner, h.liquidator, h.queue, h.quotes, h.sweeper, nil)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}

	system.OnBlock(1) // before Start and with no reporter

	if h.sweeper.calls != 1 {
		t.Errorf("sweeper calls = %d, want 1", h.sweeper.calls)
	}
}

func TestStartStop(t *testing.T) {
	h := newTestSystem(t, nil)

	if !h.stream.started {
		t.Fatal("stream not started")
	}
	if h.stream.cb == nil {
		t.Fatal("no callback registered on the stream")
	}

	h.stream.cb(7)
	if len(h.quotes.blocks) != 1 || h.quotes.blocks[0] != 7 {
		t.Errorf("quote cache blocks = %v, want [7]", h.quotes.blocks)
	}

	h.system.Stop()
	if !h.stream.stopped {
		t.Error("stream not stopped")
	}
}

func TestNewSystemValidation(t *testing.T) {
	stream := &fakeStream{}
	scanner := &fakeScanner{}
	liquidator := &fakeLiquidator{}
	queue := &inlineQueue{}
	quotes := &fakeQuotes{}
	sweeper := &fakeSweeper{}

	tests := []struct {
		name    string
		build   func() (*System, error)
		wantErr bool
	}{
		{
			name: "complete",
			build: func() (*System, error) {
				return NewSystem(defaultSystemConfig(), stream, scanner, liquidator, queue, quotes, sweeper, nil)
			},
		},
		{
			name: "nil stream",
			build: func() (*System, error) {
				return NewSystem(defaultSystemConfig(), nil, scanner, liquidator, queue, quotes, sweeper, nil)
			},
			wantErr: true,
		},
		{
			name: "nil scanner",
			build: func() (*System, error) {
				return NewSystem(defaultSystemConfig(), stream, nil, liquidator, queue, quotes, sweeper, nil)
			},
			wantErr: true,
		},
		{
			name: "nil liquidator",
			build: func() (*System, error) {
				return NewSystem(defaultSystemConfig(), stream, scanner, nil, queue, quotes, sweeper, nil)
			},
			wantErr: true,
		},
		{
			name: "nil queue",
			build: func() (*System, error) {
				return NewSystem(defaultSystemConfig(), stream, scanner, liquidator, nil, quotes, sweeper, nil)
			},
			wantErr: true,
		},
		{
			name: "nil quote caches",
			build: func() (*System, error) {
				return NewSystem(defaultSystemConfig(), stream, scanner, liquidator, queue, nil, sweeper, nil)
			},
			wantErr: true,
		},
		{
			name: "nil sweeper",
			build: func() (*System, error) {
				return NewSystem(defaultSystemConfig(), stream, scanner, liquidator, queue, quotes, nil, nil)
			},
			wantErr: true,
		},
		{
			name: "no debt assets",
			build: func() (*System, error) {
				config := defaultSystemConfig()
				config.DebtAssets = nil
				return NewSystem(config, stream, scanner, liquidator, queue, quotes, sweeper, nil)
			},
			wantErr: true,
		},
		{
			name: "no collateral assets",
			build: func() (*System, error) {
				config := defaultSystemConfig()
				config.CollateralAssets = nil
				return NewSystem(config, stream, scanner, liquidator, queue, quotes, sweeper, nil)
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, err := tt.build()
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSystem() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && system == nil {
				t.Fatal("NewSystem() returned nil system without error")
			}
		})
	}
}
