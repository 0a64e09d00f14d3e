// Package execution drives order legs to terminal states and coordinates
// paired buy/sell cycles, including the recovery path that unwinds any base
// inventory left behind by a broken cycle.
package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/exchange"
)

// TrackerConfig bounds the post-submit polling loop.
type TrackerConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
	// UnknownAfter is how many consecutive failed queries (each already
	// retried once) push a leg into the unknown state.
	UnknownAfter int
}

func (c *TrackerConfig) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UnknownAfter <= 0 {
		c.UnknownAfter = 3
	}
}

// Tracker polls one submitted order until it reaches a terminal state,
// cancelling it when the timeout elapses.
type Tracker struct {
	cfg    TrackerConfig
	logger *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(cfg TrackerConfig, logger *slog.Logger) *Tracker {
	cfg.withDefaults()
	return &Tracker{cfg: cfg, logger: logger.With(slog.String("component", "tracker"))}
}

// Drive polls the order until terminal, cancelled-on-timeout, or unknown.
// The returned leg carries whatever quantity was filled at the last
// acknowledged point. Filled amounts only ever increase.
func (t *Tracker) Drive(ctx context.Context, adapter exchange.Adapter, symbol, orderID string, side domain.OrderSide, typ domain.OrderType, requested, limitPrice decimal.Decimal) domain.LegResult {
	leg := domain.LegResult{
		OrderID:     orderID,
		Venue:       adapter.Name(),
		Side:        side,
		Type:        typ,
		Requested:   requested,
		LimitPrice:  limitPrice,
		State:       domain.LegSubmitted,
		SubmittedAt: time.Now(),
	}
	log := t.logger.With(
		slog.String("venue", string(leg.Venue)),
		slog.String("order_id", orderID),
		slog.String("side", string(side)),
	)

	deadline := leg.SubmittedAt.Add(t.cfg.Timeout)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			// Shutdown mid-leg: drive to a terminal state on a detached
			// context rather than abandoning the order in flight.
			dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return t.cancelAndSettle(dctx, adapter, symbol, &leg, log)
		case <-time.After(t.cfg.PollInterval):
		}

		fill, err := t.queryWithRetry(ctx, adapter, symbol, orderID)
		if err != nil {
			failures++
			log.Warn("order query failed",
				slog.Int("consecutive", failures),
				slog.String("error", err.Error()),
			)
			if failures >= t.cfg.UnknownAfter {
				leg.State = domain.LegUnknown
				leg.CompletedAt = time.Now()
				return leg
			}
		} else {
			failures = 0
			applyFill(&leg, fill)
			if leg.State.Terminal() {
				leg.CompletedAt = time.Now()
				return leg
			}
		}

		if time.Now().After(deadline) {
			log.Info("order timed out, cancelling",
				slog.String("filled_base", leg.FilledBase.String()),
			)
			return t.cancelAndSettle(ctx, adapter, symbol, &leg, log)
		}
	}
}

// cancelAndSettle cancels the order and settles the leg at whatever quantity
// the venue acknowledges as filled at cancel time.
func (t *Tracker) cancelAndSettle(ctx context.Context, adapter exchange.Adapter, symbol string, leg *domain.LegResult, log *slog.Logger) domain.LegResult {
	err := adapter.Cancel(ctx, symbol, leg.OrderID)
	if err != nil && !errors.Is(err, domain.ErrAlreadyTerminal) {
		if err2 := adapter.Cancel(ctx, symbol, leg.OrderID); err2 != nil && !errors.Is(err2, domain.ErrAlreadyTerminal) {
			log.Warn("cancel failed", slog.String("error", err2.Error()))
		}
	}

	fill, err := t.queryWithRetry(ctx, adapter, symbol, leg.OrderID)
	if err != nil {
		log.Warn("post-cancel query failed", slog.String("error", err.Error()))
		leg.State = domain.LegUnknown
		leg.CompletedAt = time.Now()
		return *leg
	}
	applyFill(leg, fill)
	if !leg.State.Terminal() {
		leg.State = domain.LegCancelled
	}
	leg.CompletedAt = time.Now()
	return *leg
}

// queryWithRetry performs one status query with a single retry on failure.
func (t *Tracker) queryWithRetry(ctx context.Context, adapter exchange.Adapter, symbol, orderID string) (domain.OrderFill, error) {
	fill, err := adapter.Query(ctx, symbol, orderID)
	if err == nil {
		return fill, nil
	}
	if ctx.Err() != nil {
		return domain.OrderFill{}, err
	}
	return adapter.Query(ctx, symbol, orderID)
}

// applyFill merges a venue fill report into the leg. Fill quantities are
// monotonic: a report showing less filled than already acknowledged is kept
// only for its state.
func applyFill(leg *domain.LegResult, fill domain.OrderFill) {
	if fill.FilledBase.GreaterThan(leg.FilledBase) {
		leg.FilledBase = fill.FilledBase
		leg.FilledQuote = fill.FilledQuote
		leg.AvgPrice = fill.AvgPrice
	}
	switch fill.State {
	case domain.LegFilled, domain.LegCancelled, domain.LegRejected:
		leg.State = fill.State
	case domain.LegPartiallyFilled:
		leg.State = domain.LegPartiallyFilled
	case domain.LegSubmitted:
		if leg.State != domain.LegPartiallyFilled {
			leg.State = domain.LegSubmitted
		}
	}
}
