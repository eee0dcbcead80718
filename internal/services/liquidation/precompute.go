package liquidation

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PrecomputeCache holds executor calldata built ahead of need so the hot
// path only has to patch in the live repay amount. Keys are
// user:debt:collateral, lowercase.
type PrecomputeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewPrecomputeCache creates an empty cache.
func NewPrecomputeCache() *PrecomputeCache {
	return &PrecomputeCache{entries: make(map[string][]byte)}
}

// PrecomputeKey builds the canonical cache key for a candidate triple.
func PrecomputeKey(user, debt, collateral common.Address) string {
	return strings.ToLower(user.Hex()) + ":" + strings.ToLower(debt.Hex()) + ":" + strings.ToLower(collateral.Hex())
}

// Get returns a copy of the cached calldata.
func (c *PrecomputeCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	calldata, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), calldata...), true
}

// Put stores a copy of calldata under key, replacing any previous entry.
func (c *PrecomputeCache) Put(key string, calldata []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), calldata...)
}

// Len reports the number of cached entries.
func (c *PrecomputeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *PrecomputeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
}
