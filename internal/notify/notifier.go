// Package notify delivers operator alerts raised by the reconciliation
// engine, such as failed wallet settlements, to external channels.
// Alerts fan out to every configured sender and can be narrowed to a set
// of event types.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is a single delivery channel for operator alerts.
type Sender interface {
	// Send delivers an alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to its senders. When an event allow-list is
// configured, Notify drops alerts whose event type is not listed.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. An empty
// events slice allows every event type through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers an alert to all senders if its event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. A failing sender does not block the
// rest; all failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
