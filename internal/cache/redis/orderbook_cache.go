package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// bookTTL bounds how long a mirrored snapshot may outlive its feed. Readers
// hitting an expired key fall back to domain.ErrNotFound rather than acting
// on a dead book.
const bookTTL = 30 * time.Second

// OrderbookCache implements domain.OrderbookCache by mirroring whole
// snapshots as JSON values.
//
// Key schema:
//
//	book:{venue}:{symbol} - JSON-encoded snapshot, TTL bookTTL
//
// The mirror exists for out-of-band readers (ops server, external tooling);
// the trading path reads books from process memory only.
type OrderbookCache struct {
	rdb *redis.Client
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying()}
}

func bookKey(venue domain.Venue, symbol string) string {
	return "book:" + string(venue) + ":" + symbol
}

// wireLevel keeps prices and sizes as strings so the mirror round-trips the
// exact decimals the feed produced.
type wireLevel struct {
	Price string `json:"p"`
	Size  string `json:"s"`
}

type wireSnapshot struct {
	Symbol     string      `json:"symbol"`
	Venue      string      `json:"venue"`
	Bids       []wireLevel `json:"bids"`
	Asks       []wireLevel `json:"asks"`
	UpdateID   int64       `json:"update_id"`
	CapturedAt int64       `json:"captured_at_ns"`
}

func toWire(snap domain.OrderbookSnapshot) wireSnapshot {
	w := wireSnapshot{
		Symbol:     snap.Symbol,
		Venue:      string(snap.Venue),
		Bids:       make([]wireLevel, len(snap.Bids)),
		Asks:       make([]wireLevel, len(snap.Asks)),
		UpdateID:   snap.UpdateID,
		CapturedAt: snap.CapturedAt.UnixNano(),
	}
	for i, lvl := range snap.Bids {
		w.Bids[i] = wireLevel{Price: lvl.Price.String(), Size: lvl.Size.String()}
	}
	for i, lvl := range snap.Asks {
		w.Asks[i] = wireLevel{Price: lvl.Price.String(), Size: lvl.Size.String()}
	}
	return w
}

func fromWire(w wireSnapshot) (domain.OrderbookSnapshot, error) {
	snap := domain.OrderbookSnapshot{
		Symbol:     w.Symbol,
		Venue:      domain.Venue(w.Venue),
		Bids:       make([]domain.PriceLevel, len(w.Bids)),
		Asks:       make([]domain.PriceLevel, len(w.Asks)),
		UpdateID:   w.UpdateID,
		CapturedAt: time.Unix(0, w.CapturedAt),
	}
	for i, lvl := range w.Bids {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return domain.OrderbookSnapshot{}, fmt.Errorf("bid %d price %q: %w", i, lvl.Price, err)
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			return domain.OrderbookSnapshot{}, fmt.Errorf("bid %d size %q: %w", i, lvl.Size, err)
		}
		snap.Bids[i] = domain.PriceLevel{Price: price, Size: size}
	}
	for i, lvl := range w.Asks {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return domain.OrderbookSnapshot{}, fmt.Errorf("ask %d price %q: %w", i, lvl.Price, err)
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			return domain.OrderbookSnapshot{}, fmt.Errorf("ask %d size %q: %w", i, lvl.Size, err)
		}
		snap.Asks[i] = domain.PriceLevel{Price: price, Size: size}
	}
	return snap, nil
}

// SetSnapshot replaces the mirrored snapshot for the snapshot's venue and
// symbol.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, snap domain.OrderbookSnapshot) error {
	payload, err := json.Marshal(toWire(snap))
	if err != nil {
		return fmt.Errorf("redis: encode book %s %s: %w", snap.Venue, snap.Symbol, err)
	}
	key := bookKey(snap.Venue, snap.Symbol)
	if err := oc.rdb.Set(ctx, key, payload, bookTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", key, err)
	}
	return nil
}

// GetSnapshot reads the mirrored snapshot back. It returns domain.ErrNotFound
// when no snapshot exists (or it expired).
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, venue domain.Venue, symbol string) (domain.OrderbookSnapshot, error) {
	key := bookKey(venue, symbol)
	payload, err := oc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get book %s: %w", key, err)
	}

	var w wireSnapshot
	if err := json.Unmarshal(payload, &w); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: decode book %s: %w", key, err)
	}
	snap, err := fromWire(w)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: decode book %s: %w", key, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
