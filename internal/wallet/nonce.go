package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/liquidator/internal/adapters/outbound/chainrpc"
	"github.com/archon-research/liquidator/internal/pkg/retry"
)

// NonceManager hands out strictly increasing nonces for one sender address,
// seeded lazily from the node's pending transaction count. A failed seed is
// retried on the next call rather than poisoning the manager.
type NonceManager struct {
	rpc     *chainrpc.Client
	address common.Address
	logger  *slog.Logger

	mu      sync.Mutex
	seeded  bool
	current uint64
}

// NewNonceManager creates a manager for the given sender. logger may be nil.
func NewNonceManager(rpc *chainrpc.Client, address common.Address, logger *slog.Logger) *NonceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &NonceManager{rpc: rpc, address: address, logger: logger}
}

// Next returns the next nonce to use and advances the counter.
func (m *NonceManager) Next(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seeded {
		n, err := retry.Do(ctx, retry.DefaultConfig(),
			func(error) bool { return true },
			func(attempt int, err error, backoff time.Duration) {
				m.logger.Warn("retrying pending nonce fetch",
					"address", m.address, "attempt", attempt, "backoff", backoff, "err", err)
			},
			func() (uint64, error) {
				return m.rpc.TransactionCount(ctx, m.address, "pending")
			})
		if err != nil {
			return 0, fmt.Errorf("seeding nonce for %s: %w", m.address, err)
		}
		m.current = n
		m.seeded = true
	}

	n := m.current
	m.current++
	return n, nil
}

// Reset forces the counter, typically after a nonce-too-low rejection or an
// external transaction from the same key.
func (m *NonceManager) Reset(to uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = to
	m.seeded = true
}
