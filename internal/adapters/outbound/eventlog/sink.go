// Package eventlog appends structured events to a newline-delimited JSON
// file. Writes are buffered through a queue so the hot execution path never
// blocks on disk.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/archon-research/liquidator/internal/ports/outbound"
)

const (
	queueSize     = 1024
	flushInterval = 80 * time.Millisecond
)

// Sink writes one JSON object per line, each carrying the event name and a
// millisecond timestamp.
type Sink struct {
	file   *os.File
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan map[string]any
	done   chan struct{}
}

var _ outbound.EventSink = (*Sink)(nil)

// New opens path for appending and starts the writer goroutine.
func New(path string, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	s := &Sink{
		file:   file,
		logger: logger,
		queue:  make(chan map[string]any, queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Emit queues one event. Fields are copied; the caller may reuse the map.
// Events are dropped, with a warning, if the queue is full or the sink is
// closed.
func (s *Sink) Emit(event string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["event"] = event
	entry["ts_ms"] = time.Now().UnixMilli()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- entry:
	default:
		s.logger.Warn("event queue full, dropping event", "event", event)
	}
}

// Close drains the queue, flushes and closes the file. Safe to call more
// than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.file.Close()
}

func (s *Sink) run() {
	defer close(s.done)

	w := bufio.NewWriter(s.file)
	enc := json.NewEncoder(w)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-s.queue:
			if !ok {
				if err := w.Flush(); err != nil {
					s.logger.Error("flushing event log", "err", err)
				}
				return
			}
			if err := enc.Encode(entry); err != nil {
				s.logger.Error("encoding event", "event", entry["event"], "err", err)
			}
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				s.logger.Error("flushing event log", "err", err)
			}
		}
	}
}
