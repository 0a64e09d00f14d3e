package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// The recovery planner restores one invariant: every cycle ends holding only
// quote currency on both venues. It only ever unwinds; it never opens
// exposure.

const unknownBuyRetries = 3

func addAction(rec *domain.ExecutionRecord, action, detail string) {
	rec.RecoveryActions = append(rec.RecoveryActions, domain.RecoveryAction{
		Action: action,
		Detail: detail,
		At:     time.Now(),
	})
}

// resolveUnknownBuy re-queries an unknown buy leg until the venue gives a
// conclusive answer. Returns false when the leg stays ambiguous.
func (c *Coordinator) resolveUnknownBuy(ctx context.Context, rec *domain.ExecutionRecord, leg *domain.LegResult, log *slog.Logger) bool {
	if leg.OrderID == "" {
		// The placement itself failed after retry; nothing can be on the
		// book, so the cycle ends flat.
		addAction(rec, "resolve_buy", "placement never acknowledged, treating as no fill")
		leg.State = domain.LegRejected
		return true
	}
	for attempt := 1; attempt <= unknownBuyRetries; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.tracker.cfg.PollInterval):
		}
		fill, err := c.buy.Query(ctx, c.cfg.Symbol, leg.OrderID)
		if err != nil {
			log.Warn("unknown buy re-query failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}
		applyFill(leg, fill)
		addAction(rec, "resolve_buy", fmt.Sprintf("query resolved state=%s filled=%s", fill.State, fill.FilledBase.String()))
		if leg.State.Terminal() {
			return true
		}
		// Still live on the book: cancel and settle at whatever filled.
		*leg = c.tracker.cancelAndSettle(ctx, c.buy, c.cfg.Symbol, leg, log)
		addAction(rec, "resolve_buy", fmt.Sprintf("live order cancelled, filled=%s", leg.FilledBase.String()))
		return leg.State != domain.LegUnknown
	}
	addAction(rec, "resolve_buy", "leg still ambiguous after retries")
	return false
}

// recoverSell unwinds the unsold remainder of a cycle: repeated market sells,
// then an emergency limit sell below best bid, then a stuck marker. The order
// of the first two steps follows EmergencySellFirst.
func (c *Coordinator) recoverSell(ctx context.Context, rec *domain.ExecutionRecord, log *slog.Logger) {
	remaining := rec.BoughtBase.Sub(rec.SoldBase)
	if remaining.Sign() <= 0 {
		rec.Status = domain.ExecStatusRecovered
		c.settleRealized(rec)
		return
	}

	steps := []func(context.Context, *domain.ExecutionRecord, decimal.Decimal, *slog.Logger) decimal.Decimal{
		c.retryMarketSells,
		c.emergencySell,
	}
	if c.cfg.EmergencySellFirst {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		remaining = step(ctx, rec, remaining, log)
		if remaining.Sign() <= 0 {
			rec.Status = domain.ExecStatusRecovered
			c.settleRealized(rec)
			return
		}
	}

	c.markStuck(ctx, rec, c.sell.Name(), remaining, "sell leg exhausted retries and emergency unwind", log)
}

// retryMarketSells re-issues the market sell for whatever remains unsold.
func (c *Coordinator) retryMarketSells(ctx context.Context, rec *domain.ExecutionRecord, remaining decimal.Decimal, log *slog.Logger) decimal.Decimal {
	for attempt := 1; attempt <= c.cfg.SellRetries && remaining.Sign() > 0; attempt++ {
		if ctx.Err() != nil {
			return remaining
		}
		addAction(rec, "retry_sell", fmt.Sprintf("attempt %d for %s base", attempt, remaining.String()))
		leg := c.placeAndDrive(ctx, c.sell, domain.OrderSideSell, domain.OrderTypeMarket, remaining, decimal.Zero, log)
		rec.Legs = append(rec.Legs, leg)
		if leg.FilledBase.Sign() > 0 {
			rec.SoldBase = rec.SoldBase.Add(leg.FilledBase)
			remaining = remaining.Sub(leg.FilledBase)
		}
	}
	return remaining
}

// emergencySell places a limit sell below the current best bid so it crosses
// immediately but still bounds the price.
func (c *Coordinator) emergencySell(ctx context.Context, rec *domain.ExecutionRecord, remaining decimal.Decimal, log *slog.Logger) decimal.Decimal {
	if ctx.Err() != nil {
		return remaining
	}
	snap, ok := c.books.Snapshot(c.sell.Name())
	if !ok {
		addAction(rec, "emergency_sell", "no sell-side book available")
		return remaining
	}
	bid, ok := snap.BestBid()
	if !ok {
		addAction(rec, "emergency_sell", "sell-side book has no bid")
		return remaining
	}
	discount := c.cfg.EmergencyDiscountPct.Div(decimal.NewFromInt(100))
	price := bid.Price.Mul(decimal.NewFromInt(1).Sub(discount))

	addAction(rec, "emergency_sell", fmt.Sprintf("limit sell %s base at %s (best bid %s)", remaining.String(), price.String(), bid.Price.String()))
	leg := c.placeAndDrive(ctx, c.sell, domain.OrderSideSell, domain.OrderTypeLimit, remaining, price, log)
	rec.Legs = append(rec.Legs, leg)
	if leg.FilledBase.Sign() > 0 {
		rec.SoldBase = rec.SoldBase.Add(leg.FilledBase)
		remaining = remaining.Sub(leg.FilledBase)
	}
	return remaining
}

// markStuck persists the marker, halts new cycles, and alerts the operator.
func (c *Coordinator) markStuck(ctx context.Context, rec *domain.ExecutionRecord, venue domain.Venue, baseAmount decimal.Decimal, reason string, log *slog.Logger) {
	rec.Status = domain.ExecStatusStuck
	c.settleRealized(rec)
	c.stuckFlag.Store(true)
	addAction(rec, "mark_stuck", reason)

	pos := domain.StuckPosition{
		ID:          uuid.New().String(),
		Symbol:      rec.Symbol,
		Venue:       venue,
		BaseAmount:  baseAmount,
		Reason:      reason,
		ExecutionID: rec.ID,
		CreatedAt:   time.Now(),
	}
	if c.stuck != nil {
		if err := c.stuck.Create(ctx, pos); err != nil {
			log.Error("stuck marker write failed", slog.String("error", err.Error()))
		}
	}
	log.Error("position stuck, trading halted",
		slog.String("venue", string(venue)),
		slog.String("base_amount", baseAmount.String()),
		slog.String("reason", reason),
	)

	if c.alerter != nil {
		subject := fmt.Sprintf("stuck position on %s", rec.Symbol)
		body := fmt.Sprintf("execution %s holds %s base on %s: %s", rec.ID, baseAmount.String(), venue, reason)
		if err := c.alerter.Alert(ctx, subject, body); err != nil {
			log.Warn("stuck alert failed", slog.String("error", err.Error()))
		}
	}
}

// settleRealized recomputes realized profit from the legs actually filled.
func (c *Coordinator) settleRealized(rec *domain.ExecutionRecord) {
	bought := decimal.Zero
	sold := decimal.Zero
	for _, leg := range rec.Legs {
		switch leg.Side {
		case domain.OrderSideBuy:
			bought = bought.Add(leg.FilledQuote)
		case domain.OrderSideSell:
			sold = sold.Add(leg.FilledQuote)
		}
	}
	rec.RealizedProfit = sold.Sub(bought)
}
