package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest top-of-book prices.
type PriceCache interface {
	SetBBO(ctx context.Context, venue Venue, symbol string, bid, ask decimal.Decimal, ts time.Time) error
	GetBBO(ctx context.Context, venue Venue, symbol string) (bid, ask decimal.Decimal, ts time.Time, err error)
}

// OrderbookCache mirrors the live orderbook view for out-of-band readers.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, venue Venue, symbol string) (OrderbookSnapshot, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
