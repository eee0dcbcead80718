// Package blockwatch delivers new block numbers to a single callback using a
// tiered strategy: a WebSocket newHeads subscription when endpoints are
// configured, an eth_newBlockFilter loop otherwise, and plain eth_blockNumber
// polling when the node does not support filters. Tiers are ordered and the
// watcher never climbs back to a higher tier once it has degraded.
package blockwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/archon-research/liquidator/internal/ports/outbound"
)

// Watcher drives a BlockCallback from chain head announcements. All callback
// invocations happen on one goroutine, with strictly increasing block numbers
// even across reconnects and tier changes.
type Watcher struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// lastBlock is touched only by the run goroutine.
	lastBlock uint64
	callback  outbound.BlockCallback
}

var _ outbound.BlockStream = (*Watcher)(nil)

// New creates a stopped Watcher. Call Start to begin dispatching.
func New(config Config) (*Watcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid blockwatch config: %w", err)
	}
	config.applyDefaults()

	return &Watcher{
		config: config,
		logger: config.Logger.With("component", "blockwatch"),
	}, nil
}

// Start launches the watcher goroutine. It returns an error if the watcher
// is already running or no callback is given.
func (w *Watcher) Start(callback outbound.BlockCallback) error {
	if callback == nil {
		return fmt.Errorf("block callback is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.callback = callback

	go w.run(ctx)
	return nil
}

// Stop terminates the watcher and waits for the dispatch goroutine to exit.
// It is safe to call on a stopped watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	if len(w.config.Endpoints) > 0 {
		w.runWebsocket(ctx)
		return
	}

	w.logger.Warn("no websocket endpoints configured, using block filter")
	if err := w.runFilter(ctx); err != nil {
		w.logger.Warn("block filter unavailable, falling back to polling", "error", err)
		w.runPolling(ctx)
	}
}

// dispatch forwards a head to the callback, dropping duplicates and
// reordered announcements.
func (w *Watcher) dispatch(blockNumber uint64) {
	if blockNumber <= w.lastBlock {
		return
	}
	w.lastBlock = blockNumber
	w.callback(blockNumber)
}

// runFilter installs a block filter and polls it for changes. A non-nil
// error means the filter could not be installed at all; errors while polling
// an installed filter are retried in place.
func (w *Watcher) runFilter(ctx context.Context) error {
	filterID, err := w.config.RPC.NewBlockFilter(ctx)
	if err != nil {
		return fmt.Errorf("installing block filter: %w", err)
	}
	w.logger.Info("block filter installed", "filter_id", filterID)

	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cleanupCancel()
		if err := w.config.RPC.UninstallFilter(cleanupCtx, filterID); err != nil {
			w.logger.Debug("uninstalling block filter", "error", err)
		}
	}()

	for {
		wait := filterPollIdle

		hashes, err := w.config.RPC.GetFilterChanges(ctx, filterID)
		switch {
		case err != nil:
			w.logger.Debug("polling block filter", "error", err)
			wait = filterPollError
		case len(hashes) > 0:
			// The filter only yields hashes; ask the node for the head
			// number so the callback sees real block numbers.
			blockNumber, err := w.config.RPC.BlockNumber(ctx)
			if err != nil {
				w.logger.Debug("resolving head after filter change", "error", err)
				wait = filterPollError
				break
			}
			w.dispatch(blockNumber)
			wait = filterPollHot
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// runPolling asks the node for the head number in a tight loop, backing off
// exponentially on errors and returning to the base cadence on success.
func (w *Watcher) runPolling(ctx context.Context) {
	w.logger.Info("polling for new blocks", "interval", pollBackoffMin)

	backoff := pollBackoffMin
	for {
		blockNumber, err := w.config.RPC.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Debug("polling head", "error", err)
			backoff *= 2
			if backoff > pollBackoffMax {
				backoff = pollBackoffMax
			}
		} else {
			w.dispatch(blockNumber)
			backoff = pollBackoffMin
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
