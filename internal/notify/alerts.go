package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Event types used by the engine. The config events list filters on these.
const (
	EventStuck     = "stuck"
	EventRecovered = "recovered"
	EventCycle     = "cycle"
	EventStartup   = "startup"
)

// alertTimeout bounds each fire-and-forget alert so a slow webhook cannot
// stall the caller.
const alertTimeout = 10 * time.Second

// Alerts wraps a Notifier with engine-specific message formatting. The
// fire-and-forget methods never propagate delivery failures to the trading
// path; Alert is synchronous because the recovery planner wants to know
// whether the operator was actually reached.
type Alerts struct {
	notifier *Notifier
}

// NewAlerts creates an Alerts facade over the given Notifier.
func NewAlerts(n *Notifier) *Alerts {
	return &Alerts{notifier: n}
}

// Alert delivers an operator-intervention message. The recovery planner
// calls this when it marks a position stuck.
func (a *Alerts) Alert(ctx context.Context, subject, body string) error {
	if a == nil || a.notifier == nil {
		return nil
	}
	return a.notifier.Notify(ctx, EventStuck, subject, body)
}

// Recovered reports a cycle that was unwound by the recovery planner.
func (a *Alerts) Recovered(rec domain.ExecutionRecord) {
	msg := fmt.Sprintf(
		"symbol: %s\nexecution: %s\nrealized: %s %s\nactions: %d",
		rec.Symbol, rec.ID, rec.RealizedProfit, quoteOf(rec.Symbol), len(rec.RecoveryActions),
	)
	a.fire(EventRecovered, "Cycle recovered", msg)
}

// Cycle reports a completed arbitrage cycle.
func (a *Alerts) Cycle(rec domain.ExecutionRecord) {
	msg := fmt.Sprintf(
		"symbol: %s\nexecution: %s\nstatus: %s\nbought: %s\nsold: %s\nrealized: %s %s",
		rec.Symbol, rec.ID, rec.Status, rec.BoughtBase, rec.SoldBase,
		rec.RealizedProfit, quoteOf(rec.Symbol),
	)
	a.fire(EventCycle, "Cycle finished", msg)
}

// Startup reports that the engine came up, including whether it is live.
func (a *Alerts) Startup(symbol string, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	a.fire(EventStartup, "Engine started", fmt.Sprintf("symbol: %s\nmode: %s", symbol, mode))
}

func (a *Alerts) fire(event, title, message string) {
	if a == nil || a.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		_ = a.notifier.Notify(ctx, event, title, message)
	}()
}

func quoteOf(symbol string) string {
	for i := len(symbol) - 1; i >= 0; i-- {
		if symbol[i] == '-' {
			return symbol[i+1:]
		}
	}
	return symbol
}
