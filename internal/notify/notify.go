// Package notify is the outbound notification contract. Delivery is
// fire-and-forget: the core never waits on or reacts to delivery
// outcomes, and message content is owned by the downstream channel.
package notify

import (
	"context"
	"log/slog"
)

// Kind names the occurrence being notified about.
type Kind string

const (
	KindAdminCreated     Kind = "admin_created"
	KindAdminActivated   Kind = "admin_activated"
	KindAdminDeactivated Kind = "admin_deactivated"
	KindRequestCreated   Kind = "request_created"
	KindRequestApproved  Kind = "request_approved"
	KindRequestRejected  Kind = "request_rejected"
)

// Notifier delivers a notification about target, attributed to actor.
// Implementations must not block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, target, actor string, kind Kind, details map[string]string)
}

// LogNotifier writes notifications to the structured log. It stands in
// for a real delivery channel in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, target, actor string, kind Kind, details map[string]string) {
	args := []any{"kind", string(kind), "target", target, "actor", actor}
	for k, v := range details {
		args = append(args, k, v)
	}
	n.logger.Info("notification", args...)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) Notify(context.Context, string, string, Kind, map[string]string) {}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Noop{}
)
