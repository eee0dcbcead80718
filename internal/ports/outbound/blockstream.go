package outbound

// BlockCallback is invoked once per new block, on a single goroutine, with
// strictly increasing block numbers.
type BlockCallback func(blockNumber uint64)

// BlockStream produces new-block notifications until stopped.
type BlockStream interface {
	// Start begins delivery to cb. It returns once the stream's goroutine is
	// running; delivery is asynchronous.
	Start(cb BlockCallback) error

	// Stop halts delivery and releases network resources. Blocks until the
	// delivery goroutine has exited.
	Stop()
}
