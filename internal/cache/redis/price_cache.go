package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each venue's top-of-book is stored as a hash at key "bbo:{venue}:{symbol}"
// with fields "bid", "ask", and "ts" (Unix nanosecond timestamp). Prices are
// stored as decimal strings.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func bboKey(venue domain.Venue, symbol string) string {
	return "bbo:" + string(venue) + ":" + symbol
}

// SetBBO stores the latest best bid/ask and timestamp for a venue's symbol.
func (pc *PriceCache) SetBBO(ctx context.Context, venue domain.Venue, symbol string, bid, ask decimal.Decimal, ts time.Time) error {
	key := bboKey(venue, symbol)
	fields := map[string]interface{}{
		"bid": bid.String(),
		"ask": ask.String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set bbo %s: %w", key, err)
	}
	return nil
}

// GetBBO retrieves the latest best bid/ask and timestamp for a venue's symbol.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetBBO(ctx context.Context, venue domain.Venue, symbol string) (bid, ask decimal.Decimal, ts time.Time, err error) {
	key := bboKey(venue, symbol)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return decimal.Zero, decimal.Zero, time.Time{}, fmt.Errorf("redis: get bbo %s: %w", key, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	bidStr, ok := vals["bid"]
	if !ok {
		return decimal.Zero, decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	bid, err = decimal.NewFromString(bidStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, time.Time{}, fmt.Errorf("redis: parse bid %s: %w", key, err)
	}

	askStr, ok := vals["ask"]
	if !ok {
		return decimal.Zero, decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	ask, err = decimal.NewFromString(askStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ask %s: %w", key, err)
	}

	if tsStr, ok := vals["ts"]; ok {
		if tsNano, perr := strconv.ParseInt(tsStr, 10, 64); perr == nil {
			ts = time.Unix(0, tsNano)
		}
	}

	return bid, ask, ts, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
