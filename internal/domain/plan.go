package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradePlan is a candidate paired trade produced by the evaluator. Plans live
// only within one evaluation-to-execution cycle.
type TradePlan struct {
	Symbol           string
	BaseAmount       decimal.Decimal
	BuyLimitPrice    decimal.Decimal // best ask on the buy venue
	ExpectedSellVWAP decimal.Decimal
	QuoteCost        decimal.Decimal
	QuoteProceeds    decimal.Decimal
	ExpectedProfit   decimal.Decimal
	ProfitBps        decimal.Decimal
	SlippageBps      decimal.Decimal
	DepthLimited     bool
	BuyUpdateID      int64
	SellUpdateID     int64
	ComputedAt       time.Time
}

// FeeSchedule is accepted by the evaluator for forward compatibility; all
// rates are currently zero in plan arithmetic.
type FeeSchedule struct {
	BuyMakerRate  decimal.Decimal
	BuyTakerRate  decimal.Decimal
	SellMakerRate decimal.Decimal
	SellTakerRate decimal.Decimal
}
