package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes resting limit orders from marketable orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// LegState tracks the lifecycle of one order leg.
type LegState string

const (
	LegIdle            LegState = "idle"
	LegSubmitted       LegState = "submitted"
	LegPartiallyFilled LegState = "partially_filled"
	LegFilled          LegState = "filled"
	LegCancelled       LegState = "cancelled"
	LegRejected        LegState = "rejected"
	// LegUnknown is reached only when post-submit queries fail and the last
	// acknowledged state is inconclusive. Sole entry point for recovery.
	LegUnknown LegState = "unknown"
)

// Terminal reports whether the state admits no further transitions.
func (s LegState) Terminal() bool {
	switch s {
	case LegFilled, LegCancelled, LegRejected:
		return true
	}
	return false
}

// OrderFill is the venue-reported fill status of an order.
type OrderFill struct {
	State       LegState
	FilledBase  decimal.Decimal
	FilledQuote decimal.Decimal
	AvgPrice    decimal.Decimal
}

// LegResult is the terminal outcome of driving one order leg.
type LegResult struct {
	OrderID     string
	Venue       Venue
	Side        OrderSide
	Type        OrderType
	Requested   decimal.Decimal
	LimitPrice  decimal.Decimal // zero for market orders
	State       LegState
	FilledBase  decimal.Decimal
	FilledQuote decimal.Decimal
	AvgPrice    decimal.Decimal
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Fully reports whether the requested amount was filled in full.
func (r LegResult) Fully() bool {
	return r.State == LegFilled && r.FilledBase.GreaterThanOrEqual(r.Requested)
}
