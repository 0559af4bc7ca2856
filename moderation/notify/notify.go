// Package notify is the outbound notification boundary. Delivery is
// fire-and-forget from the engine's perspective: failures are logged by
// callers, never retried here.
package notify

import (
	"context"
)

type Notifier interface {
	Send(ctx context.Context, recipients []string, category string, payload map[string]string) error
}

// Null discards all notifications. Used when no delivery channel is
// configured.
type Null struct{}

func (Null) Send(ctx context.Context, recipients []string, category string, payload map[string]string) error {
	return nil
}

var _ Notifier = Null{}
