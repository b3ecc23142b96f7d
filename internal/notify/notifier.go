// Package notify delivers operator alerts about arbitrage outcomes to chat
// channels. Alerts are filtered by event name so operators only hear about
// the outcomes they configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// Event names accepted in notify.events.
const (
	EventArbCompleted = "arb_completed"
	EventArbAdjusted  = "arb_adjusted"
	EventArbCancelled = "arb_cancelled"
)

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every Sender whose event passes the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is registered.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Allows reports whether event passes the configured filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title and message to all senders when event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyExecution alerts on a terminal arbitrage record.
func (n *Notifier) NotifyExecution(ctx context.Context, rec domain.ArbRecord) error {
	if !rec.Status.Terminal() {
		return nil
	}
	title, message := FormatExecution(rec)
	return n.Notify(ctx, ExecutionEvent(rec.Status), title, message)
}

// ExecutionEvent maps a terminal status to its event name.
func ExecutionEvent(s domain.ArbStatus) string {
	return "arb_" + string(s)
}

// FormatExecution renders a terminal record as an alert title and body.
func FormatExecution(rec domain.ArbRecord) (string, string) {
	title := fmt.Sprintf("Arbitrage %s: %s", rec.Status, rec.Match)

	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\n", rec.ID)
	fmt.Fprintf(&b, "home: %s @ %s stake %.2f\n", rec.HomeBookmaker, formatOdds(rec.HomeOdds), rec.HomeStake)
	fmt.Fprintf(&b, "away: %s @ %s stake %.2f\n", rec.AwayBookmaker, formatOdds(rec.AwayOdds), rec.AwayStake)
	fmt.Fprintf(&b, "guaranteed profit: %.2f", rec.GuaranteedProfit)
	return title, b.String()
}

func formatOdds(o *float64) string {
	if o == nil {
		return "closed"
	}
	return fmt.Sprintf("%.2f", *o)
}

// dispatch delivers to every sender. One failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
