// Package evaluator sizes and prices candidate paired trades: buy at the best
// ask on one venue, sell into the bid ladder of another. All arithmetic is
// exact decimal.
package evaluator

import (
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/book"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Rejection reasons. Callers treat any of these as "no plan this cycle", not
// as a fault.
var (
	ErrNoAsk            = errors.New("evaluator: buy book has no ask")
	ErrNoBidDepth       = errors.New("evaluator: sell book has no bid depth")
	ErrZeroSize         = errors.New("evaluator: candidate size is zero")
	ErrBelowMinProfit   = errors.New("evaluator: below profit threshold")
	ErrNegativeSlippage = errors.New("evaluator: sell VWAP below buy price")
	ErrSlippageTooHigh  = errors.New("evaluator: slippage above limit")
)

var bps = decimal.New(1, 4) // 10000

// Config bounds what the evaluator will propose.
type Config struct {
	MinProfitQuote  decimal.Decimal
	MinProfitPct    decimal.Decimal // percent, e.g. 0.05 for 5 bps
	MaxBasePerTrade decimal.Decimal
	MaxSlippageBps  decimal.Decimal
	// BaseIncrement is the buy venue's lot size; the candidate size is
	// rounded down to it when the balance constraint binds.
	BaseIncrement decimal.Decimal
	// Fees is carried for forward compatibility; rates do not yet enter
	// plan arithmetic.
	Fees domain.FeeSchedule
}

// Evaluator turns a pair of books and a quote balance into trade plans.
type Evaluator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Evaluator.
func New(cfg Config, logger *slog.Logger) *Evaluator {
	return &Evaluator{cfg: cfg, logger: logger.With(slog.String("component", "evaluator"))}
}

// Evaluate proposes a plan buying at buyBook's best ask and selling into
// sellBook's bids, constrained by the available quote balance. A nil plan
// with one of the package rejection errors means no opportunity.
func (e *Evaluator) Evaluate(buyBook, sellBook domain.OrderbookSnapshot, quoteBalance decimal.Decimal) (*domain.TradePlan, error) {
	bestAsk, ok := buyBook.BestAsk()
	if !ok {
		return nil, ErrNoAsk
	}
	ask1 := bestAsk.Price

	bids := book.NewCurve(sellBook.Bids)
	if bids.Empty() {
		return nil, ErrNoBidDepth
	}

	x, balanceBound, depthBound := e.candidateSize(ask1, quoteBalance, bids.Depth())
	if balanceBound && e.cfg.BaseIncrement.Sign() > 0 {
		x = roundDownToIncrement(x, e.cfg.BaseIncrement)
	}
	x = shrinkFlatTail(x, ask1, sellBook.Bids)
	if x.Sign() <= 0 {
		return nil, ErrZeroSize
	}

	quoteCost := x.Mul(ask1)
	fill := bids.ProceedsForSize(x)
	profit := fill.Quote.Sub(quoteCost)
	profitBps := profit.Div(quoteCost).Mul(bps)

	if profit.LessThan(e.cfg.MinProfitQuote) || profitBps.LessThan(e.cfg.MinProfitPct.Mul(decimal.NewFromInt(100))) {
		return nil, ErrBelowMinProfit
	}

	vwap := fill.VWAP()
	slippageBps := vwap.Sub(ask1).Div(ask1).Mul(bps)
	if slippageBps.Sign() < 0 {
		return nil, ErrNegativeSlippage
	}
	if slippageBps.GreaterThan(e.cfg.MaxSlippageBps) {
		return nil, ErrSlippageTooHigh
	}

	plan := &domain.TradePlan{
		Symbol:           buyBook.Symbol,
		BaseAmount:       x,
		BuyLimitPrice:    ask1,
		ExpectedSellVWAP: vwap,
		QuoteCost:        quoteCost,
		QuoteProceeds:    fill.Quote,
		ExpectedProfit:   profit,
		ProfitBps:        profitBps,
		SlippageBps:      slippageBps,
		DepthLimited:     depthBound || fill.DepthLimited,
		BuyUpdateID:      buyBook.UpdateID,
		SellUpdateID:     sellBook.UpdateID,
		ComputedAt:       time.Now(),
	}
	e.logger.Debug("plan candidate",
		slog.String("base", plan.BaseAmount.String()),
		slog.String("profit", plan.ExpectedProfit.String()),
		slog.String("profit_bps", plan.ProfitBps.String()),
	)
	return plan, nil
}

// candidateSize computes x = min(balance/ask1, max_base_per_trade, sell-side
// depth) and reports which constraint bound.
func (e *Evaluator) candidateSize(ask1, quoteBalance, sellDepth decimal.Decimal) (x decimal.Decimal, balanceBound, depthBound bool) {
	x = quoteBalance.Div(ask1)
	balanceBound = true
	if e.cfg.MaxBasePerTrade.Sign() > 0 && e.cfg.MaxBasePerTrade.LessThan(x) {
		x = e.cfg.MaxBasePerTrade
		balanceBound = false
	}
	if sellDepth.LessThan(x) {
		x = sellDepth
		balanceBound = false
		depthBound = true
	}
	return x, balanceBound, depthBound
}

// shrinkFlatTail removes the tail of the consumed bid region priced exactly
// at ask1. Selling there moves no profit, so the smallest size on the flat
// region wins.
func shrinkFlatTail(x, ask1 decimal.Decimal, bids []domain.PriceLevel) decimal.Decimal {
	type slice struct {
		price decimal.Decimal
		take  decimal.Decimal
	}
	var consumed []slice
	cum := decimal.Zero
	for _, lvl := range bids {
		if lvl.Size.Sign() <= 0 {
			continue
		}
		take := lvl.Size
		if cum.Add(take).GreaterThan(x) {
			take = x.Sub(cum)
		}
		if take.Sign() <= 0 {
			break
		}
		consumed = append(consumed, slice{price: lvl.Price, take: take})
		cum = cum.Add(take)
		if cum.GreaterThanOrEqual(x) {
			break
		}
	}
	for i := len(consumed) - 1; i >= 0; i-- {
		if !consumed[i].price.Equal(ask1) {
			break
		}
		x = x.Sub(consumed[i].take)
	}
	return x
}

func roundDownToIncrement(x, inc decimal.Decimal) decimal.Decimal {
	return x.Div(inc).Floor().Mul(inc)
}
