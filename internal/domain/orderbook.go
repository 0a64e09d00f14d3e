package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies one of the connected exchanges.
type Venue string

const (
	VenueMEXC  Venue = "mexc"
	VenueBingX Venue = "bingx"
)

// PriceLevel is a single price+size entry in an orderbook. Price is quote
// units per base unit, Size is base units.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderbookSnapshot is a full snapshot of bids and asks for a symbol on one
// venue. Bids are sorted strictly descending by price, asks strictly
// ascending. Snapshots are immutable once published.
type OrderbookSnapshot struct {
	Symbol     string
	Venue      Venue
	Bids       []PriceLevel
	Asks       []PriceLevel
	UpdateID   int64
	CapturedAt time.Time
}

// BestBid returns the top bid level, or false when the side is empty.
func (s *OrderbookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level, or false when the side is empty.
func (s *OrderbookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// MidPrice returns (bestBid+bestAsk)/2, or false when either side is empty.
func (s *OrderbookSnapshot) MidPrice() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread returns bestAsk-bestBid, or false when either side is empty.
func (s *OrderbookSnapshot) Spread() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Validate checks the snapshot invariants: sides correctly sorted, no
// zero-size or duplicate-price levels, book not crossed.
func (s *OrderbookSnapshot) Validate() error {
	for i, lvl := range s.Bids {
		if lvl.Size.Sign() <= 0 {
			return fmt.Errorf("domain: bid level %d: %w", i, ErrZeroSizeLevel)
		}
		if i > 0 && lvl.Price.GreaterThanOrEqual(s.Bids[i-1].Price) {
			return fmt.Errorf("domain: bid level %d: %w", i, ErrUnsortedBook)
		}
	}
	for i, lvl := range s.Asks {
		if lvl.Size.Sign() <= 0 {
			return fmt.Errorf("domain: ask level %d: %w", i, ErrZeroSizeLevel)
		}
		if i > 0 && lvl.Price.LessThanOrEqual(s.Asks[i-1].Price) {
			return fmt.Errorf("domain: ask level %d: %w", i, ErrUnsortedBook)
		}
	}
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if okB && okA && bid.Price.GreaterThanOrEqual(ask.Price) {
		return fmt.Errorf("domain: bid %s >= ask %s: %w", bid.Price, ask.Price, ErrCrossedBook)
	}
	return nil
}

// TradeSide indicates the aggressor side of a public trade print.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is a public trade print from a venue's deals stream.
type Trade struct {
	Symbol     string
	Venue      Venue
	Price      decimal.Decimal
	Size       decimal.Decimal
	Side       TradeSide
	TradeTime  time.Time
	CapturedAt time.Time
}
