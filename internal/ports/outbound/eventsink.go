package outbound

// EventSink receives structured pipeline events. Implementations own
// timestamping (ts_ms) and persistence; Emit must never block the producer
// beyond a queue push.
type EventSink interface {
	// Emit records one event. fields must not contain the "event" or "ts_ms"
	// keys; the sink adds both.
	Emit(event string, fields map[string]any)

	// Close flushes buffered events and releases the sink.
	Close() error
}

// NopSink discards all events. Useful in tests and optional wiring.
type NopSink struct{}

func (NopSink) Emit(string, map[string]any) {}
func (NopSink) Close() error                { return nil }
