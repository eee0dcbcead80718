package outbound

import "context"

// Notifier delivers human-facing messages. Implementations rate-limit and
// never propagate delivery failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// NopNotifier drops all messages.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) {}
