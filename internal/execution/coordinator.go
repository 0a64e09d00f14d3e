package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/evaluator"
	"github.com/alanyoungcy/crossarb/internal/exchange"
)

// BookSource provides the current per-venue book view; implemented by the
// market-data service.
type BookSource interface {
	Snapshot(venue domain.Venue) (domain.OrderbookSnapshot, bool)
}

// Alerter receives operator-intervention alerts.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Config bounds the paired-execution loop.
type Config struct {
	Symbol          string
	QuoteAsset      string
	RecheckInterval time.Duration
	// PreExecTolerancePct is the max percent drift of the buy venue's best
	// ask between plan and gate re-check, default 2.
	PreExecTolerancePct decimal.Decimal
	// EmergencyDiscountPct is the fraction below best bid, in percent, for
	// the emergency unwind limit price, default 1.
	EmergencyDiscountPct decimal.Decimal
	SellRetries          int
	EmergencySellFirst   bool
	DryRun               bool
	LockTTL              time.Duration
}

func (c *Config) withDefaults() {
	if c.RecheckInterval <= 0 {
		c.RecheckInterval = time.Second
	}
	if c.PreExecTolerancePct.Sign() <= 0 {
		c.PreExecTolerancePct = decimal.NewFromInt(2)
	}
	if c.EmergencyDiscountPct.Sign() <= 0 {
		c.EmergencyDiscountPct = decimal.NewFromInt(1)
	}
	if c.SellRetries <= 0 {
		c.SellRetries = 2
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDC"
	}
}

// Coordinator runs the evaluate → gate → buy → sell cycle and owns both leg
// state machines. It never initiates a new cycle while a stuck position is
// open.
type Coordinator struct {
	cfg     Config
	books   BookSource
	eval    *evaluator.Evaluator
	buy     exchange.Adapter
	sell    exchange.Adapter
	tracker *Tracker

	execs   domain.ExecutionStore
	stuck   domain.StuckPositionStore
	alerter Alerter
	locker  domain.LockManager

	logger    *slog.Logger
	stuckFlag atomic.Bool
	cycles    atomic.Int64
	onRecord  func(domain.ExecutionRecord)
}

// NewCoordinator wires a Coordinator. alerter and locker may be nil.
func NewCoordinator(
	cfg Config,
	books BookSource,
	eval *evaluator.Evaluator,
	buy, sell exchange.Adapter,
	tracker *Tracker,
	execs domain.ExecutionStore,
	stuck domain.StuckPositionStore,
	alerter Alerter,
	locker domain.LockManager,
	logger *slog.Logger,
) *Coordinator {
	cfg.withDefaults()
	return &Coordinator{
		cfg:     cfg,
		books:   books,
		eval:    eval,
		buy:     buy,
		sell:    sell,
		tracker: tracker,
		execs:   execs,
		stuck:   stuck,
		alerter: alerter,
		locker:  locker,
		logger:  logger.With(slog.String("component", "coordinator")),
	}
}

// Stuck reports whether trading is halted on an open stuck position.
func (c *Coordinator) Stuck() bool { return c.stuckFlag.Load() }

// OnRecord registers a callback invoked after every finished cycle with the
// persisted execution record. Set it before Run.
func (c *Coordinator) OnRecord(fn func(domain.ExecutionRecord)) { c.onRecord = fn }

// Run ticks the cycle loop until the context ends. It refuses to start when
// stuck positions are already open.
func (c *Coordinator) Run(ctx context.Context) error {
	open, err := c.stuck.ListOpen(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("execution: list stuck positions: %w", err)
	}
	if len(open) > 0 {
		c.stuckFlag.Store(true)
		for _, p := range open {
			c.logger.Error("stuck position open, refusing to trade",
				slog.String("id", p.ID),
				slog.String("venue", string(p.Venue)),
				slog.String("base_amount", p.BaseAmount.String()),
				slog.String("reason", p.Reason),
			)
		}
		return fmt.Errorf("execution: %d open stuck positions on %s: %w", len(open), c.cfg.Symbol, domain.ErrStuck)
	}

	c.logger.Info("coordinator started",
		slog.String("symbol", c.cfg.Symbol),
		slog.Bool("dry_run", c.cfg.DryRun),
	)
	defer c.logger.Info("coordinator stopped")

	ticker := time.NewTicker(c.cfg.RecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if c.stuckFlag.Load() {
			c.logger.Warn("skipping cycle: stuck position open")
			continue
		}
		c.runCycle(ctx)
	}
}

// runCycle performs one evaluate → gate → execute pass. All failures are
// logged and end the cycle; nothing here is fatal to the loop.
func (c *Coordinator) runCycle(ctx context.Context) {
	cycleID := uuid.New().String()
	log := c.logger.With(slog.String("cycle_id", cycleID))
	c.cycles.Add(1)

	buyBook, ok := c.books.Snapshot(c.buy.Name())
	if !ok {
		log.Debug("no buy-side book yet")
		return
	}
	sellBook, ok := c.books.Snapshot(c.sell.Name())
	if !ok {
		log.Debug("no sell-side book yet")
		return
	}

	balance, err := c.quoteBalance(ctx)
	if err != nil {
		log.Warn("balance fetch failed", slog.String("error", err.Error()))
		return
	}

	plan, err := c.eval.Evaluate(buyBook, sellBook, balance)
	if err != nil {
		log.Debug("no plan", slog.String("reason", err.Error()))
		return
	}

	if reason := c.gate(ctx, plan, balance); reason != "" {
		log.Info("pre-execution gate failed, plan abandoned",
			slog.String("reason", reason),
			slog.String("planned_base", plan.BaseAmount.String()),
		)
		return
	}

	if c.locker != nil {
		unlock, err := c.locker.Acquire(ctx, "crossarb:cycle:"+c.cfg.Symbol, c.cfg.LockTTL)
		if err != nil {
			log.Warn("cycle lock not acquired", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}

	rec := c.execute(ctx, cycleID, plan, log)
	if c.execs != nil {
		if err := c.execs.Create(ctx, rec); err != nil {
			log.Error("execution record write failed", slog.String("error", err.Error()))
		}
	}
	if c.onRecord != nil {
		c.onRecord(rec)
	}
	log.Info("cycle finished",
		slog.String("status", string(rec.Status)),
		slog.String("bought_base", rec.BoughtBase.String()),
		slog.String("sold_base", rec.SoldBase.String()),
		slog.String("realized_profit", rec.RealizedProfit.String()),
	)
}

// gate re-reads both books and re-evaluates with the same configuration. It
// passes only when a plan is still profitable and the buy venue's best ask
// stayed within tolerance of the original plan price.
func (c *Coordinator) gate(ctx context.Context, plan *domain.TradePlan, balance decimal.Decimal) string {
	buyBook, ok := c.books.Snapshot(c.buy.Name())
	if !ok {
		return "buy-side book unavailable"
	}
	sellBook, ok := c.books.Snapshot(c.sell.Name())
	if !ok {
		return "sell-side book unavailable"
	}

	if _, err := c.eval.Evaluate(buyBook, sellBook, balance); err != nil {
		return "re-evaluation rejected: " + err.Error()
	}

	ask, ok := buyBook.BestAsk()
	if !ok {
		return "buy-side book has no ask"
	}
	driftPct := ask.Price.Sub(plan.BuyLimitPrice).Abs().
		Div(plan.BuyLimitPrice).
		Mul(decimal.NewFromInt(100))
	if driftPct.GreaterThan(c.cfg.PreExecTolerancePct) {
		return fmt.Sprintf("ask drifted %s%% from plan price %s", driftPct.StringFixed(2), plan.BuyLimitPrice.String())
	}
	return ""
}

// execute drives the buy leg, then the sell leg with the realized filled
// quantity, handing anything broken to the recovery planner.
func (c *Coordinator) execute(ctx context.Context, cycleID string, plan *domain.TradePlan, log *slog.Logger) domain.ExecutionRecord {
	rec := domain.ExecutionRecord{
		ID:             cycleID,
		Symbol:         plan.Symbol,
		DryRun:         c.cfg.DryRun,
		PlannedBase:    plan.BaseAmount,
		BuyLimitPrice:  plan.BuyLimitPrice,
		ExpectedProfit: plan.ExpectedProfit,
		StartedAt:      time.Now(),
	}
	defer func() { rec.CompletedAt = time.Now() }()

	buyLeg := c.placeAndDrive(ctx, c.buy, domain.OrderSideBuy, domain.OrderTypeLimit, plan.BaseAmount, plan.BuyLimitPrice, log)
	rec.Legs = append(rec.Legs, buyLeg)

	if buyLeg.State == domain.LegUnknown {
		resolved := c.resolveUnknownBuy(ctx, &rec, &buyLeg, log)
		rec.Legs[0] = buyLeg
		if !resolved {
			c.markStuck(ctx, &rec, c.buy.Name(), plan.BaseAmount, "buy leg unresolved after retries", log)
			return rec
		}
	}
	rec.BoughtBase = buyLeg.FilledBase

	if rec.BoughtBase.Sign() <= 0 {
		rec.Status = domain.ExecStatusNoFill
		return rec
	}

	// The sell quantity is always the realized buy fill, never the plan.
	sellLeg := c.placeAndDrive(ctx, c.sell, domain.OrderSideSell, domain.OrderTypeMarket, rec.BoughtBase, decimal.Zero, log)
	rec.Legs = append(rec.Legs, sellLeg)
	rec.SoldBase = sellLeg.FilledBase

	if sellLeg.State == domain.LegFilled && rec.SoldBase.GreaterThanOrEqual(rec.BoughtBase) {
		rec.Status = domain.ExecStatusCompleted
		rec.RealizedProfit = sellLeg.FilledQuote.Sub(buyLeg.FilledQuote)
		return rec
	}

	c.recoverSell(ctx, &rec, log)
	return rec
}

// placeAndDrive submits an order (one retry on a transport failure) and
// drives it to a terminal state. Venue rejections terminate the leg directly.
func (c *Coordinator) placeAndDrive(ctx context.Context, adapter exchange.Adapter, side domain.OrderSide, typ domain.OrderType, baseAmount, limitPrice decimal.Decimal, log *slog.Logger) domain.LegResult {
	if c.cfg.DryRun {
		return c.simulateLeg(adapter, side, typ, baseAmount, limitPrice)
	}

	orderID, err := c.place(ctx, adapter, side, typ, baseAmount, limitPrice)
	if err != nil && !domain.IsRejection(err) && ctx.Err() == nil {
		log.Warn("order placement failed, retrying once",
			slog.String("venue", string(adapter.Name())),
			slog.String("error", err.Error()),
		)
		orderID, err = c.place(ctx, adapter, side, typ, baseAmount, limitPrice)
	}
	if err != nil {
		state := domain.LegUnknown
		if domain.IsRejection(err) {
			state = domain.LegRejected
		}
		log.Warn("order placement terminal failure",
			slog.String("venue", string(adapter.Name())),
			slog.String("state", string(state)),
			slog.String("error", err.Error()),
		)
		now := time.Now()
		return domain.LegResult{
			Venue:       adapter.Name(),
			Side:        side,
			Type:        typ,
			Requested:   baseAmount,
			LimitPrice:  limitPrice,
			State:       state,
			SubmittedAt: now,
			CompletedAt: now,
		}
	}
	return c.tracker.Drive(ctx, adapter, c.cfg.Symbol, orderID, side, typ, baseAmount, limitPrice)
}

func (c *Coordinator) place(ctx context.Context, adapter exchange.Adapter, side domain.OrderSide, typ domain.OrderType, baseAmount, limitPrice decimal.Decimal) (string, error) {
	if typ == domain.OrderTypeLimit {
		return adapter.PlaceLimit(ctx, c.cfg.Symbol, side, baseAmount, limitPrice)
	}
	return adapter.PlaceMarket(ctx, c.cfg.Symbol, side, baseAmount)
}

// simulateLeg fills an order instantly at plan prices for dry-run cycles.
func (c *Coordinator) simulateLeg(adapter exchange.Adapter, side domain.OrderSide, typ domain.OrderType, baseAmount, limitPrice decimal.Decimal) domain.LegResult {
	price := limitPrice
	if typ == domain.OrderTypeMarket {
		if snap, ok := c.books.Snapshot(adapter.Name()); ok {
			if side == domain.OrderSideSell {
				if bid, ok := snap.BestBid(); ok {
					price = bid.Price
				}
			} else if ask, ok := snap.BestAsk(); ok {
				price = ask.Price
			}
		}
	}
	now := time.Now()
	return domain.LegResult{
		OrderID:     "dry-" + uuid.New().String(),
		Venue:       adapter.Name(),
		Side:        side,
		Type:        typ,
		Requested:   baseAmount,
		LimitPrice:  limitPrice,
		State:       domain.LegFilled,
		FilledBase:  baseAmount,
		FilledQuote: baseAmount.Mul(price),
		AvgPrice:    price,
		SubmittedAt: now,
		CompletedAt: now,
	}
}

// quoteBalance returns the free quote-asset balance on the buy venue. Dry-run
// cycles use a synthetic balance so evaluation still runs.
func (c *Coordinator) quoteBalance(ctx context.Context) (decimal.Decimal, error) {
	if c.cfg.DryRun {
		return decimal.New(1, 6), nil
	}
	balances, err := c.buy.FetchBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, b := range balances {
		if b.Asset == c.cfg.QuoteAsset {
			return b.Free, nil
		}
	}
	return decimal.Zero, nil
}
