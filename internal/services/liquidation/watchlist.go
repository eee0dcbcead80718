package liquidation

import (
	"sort"
	"strings"
	"sync"

	"github.com/archon-research/liquidator/internal/domain/entity"
)

// WatchEntry is one (user, debt, collateral) candidate tracked between
// scans. TargetBuffer widens the prestage band above a health factor of 1.
type WatchEntry struct {
	Position     entity.BorrowerPosition
	TargetBuffer float64
}

// Watchlist keeps the latest scan state per candidate triple. A health
// factor of zero means the last read failed; such entries are stored but
// never selected.
type Watchlist struct {
	mu      sync.Mutex
	entries map[string]WatchEntry
}

// NewWatchlist creates an empty list.
func NewWatchlist() *Watchlist {
	return &Watchlist{entries: make(map[string]WatchEntry)}
}

func watchKey(p entity.BorrowerPosition) string {
	return strings.ToLower(p.User.Hex() + "|" + p.Debt.Hex() + "|" + p.Collateral.Hex())
}

// UpsertAndSelectForPrestage merges a scan into the list and returns the
// entries close enough to liquidation that their calldata is worth
// precomputing. Entries without a buffer get defaultBuffer.
func (w *Watchlist) UpsertAndSelectForPrestage(scan []WatchEntry, defaultBuffer float64) []WatchEntry {
	var prestage []WatchEntry
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range scan {
		if entry.TargetBuffer <= 0 {
			entry.TargetBuffer = defaultBuffer
		}
		w.entries[watchKey(entry.Position)] = entry
		hf := entry.Position.HealthFactor
		if hf > 0 && hf < 1.0+entry.TargetBuffer {
			prestage = append(prestage, entry)
		}
	}
	return prestage
}

// CollectTriggers returns the entries currently liquidatable, in key order.
func (w *Watchlist) CollectTriggers() []WatchEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectLocked(func(e WatchEntry) bool {
		return e.Position.HealthFactor > 0 && e.Position.HealthFactor < 1.0
	})
}

// Snapshot copies the full list, in key order.
func (w *Watchlist) Snapshot() []WatchEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectLocked(func(WatchEntry) bool { return true })
}

// Len reports the number of tracked entries.
func (w *Watchlist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Watchlist) selectLocked(keep func(WatchEntry) bool) []WatchEntry {
	keys := make([]string, 0, len(w.entries))
	for key, entry := range w.entries {
		if keep(entry) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	selected := make([]WatchEntry, 0, len(keys))
	for _, key := range keys {
		selected = append(selected, w.entries[key])
	}
	return selected
}
