// Package notify defines the outbound notification seam. Dispatch is
// best-effort: services log failures and never roll back a state transition
// because a notification could not be sent.
package notify

import (
	"context"
	"log/slog"
)

// Event describes a state change worth telling someone about.
type Event struct {
	Type       string
	EntityKind string
	EntityID   string
	Payload    map[string]string
}

// Notifier dispatches events to customers, drivers, or operators. Real
// implementations (email, SMS, push) live outside this module; the contract
// is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes notifications to the log. Used in development and as
// the default when no dispatcher is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.InfoContext(ctx, "notification",
		"type", event.Type,
		"entity_kind", event.EntityKind,
		"entity_id", event.EntityID,
	)
	return nil
}
