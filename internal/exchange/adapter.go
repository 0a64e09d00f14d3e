// Package exchange defines the capability contract each connected venue must
// provide: streaming and snapshot orderbook access plus order placement,
// cancellation and status queries.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Adapter is the venue capability contract. Implementations normalize the
// canonical BASE-QUOTE symbol to the venue's native form on their boundary
// and map venue errors onto the domain error taxonomy: *domain.RejectionError
// for venue-side rejections, *domain.TransportError for timeouts, disconnects
// and decode failures, *domain.InvariantError for size/tick rule violations.
type Adapter interface {
	// Name identifies the venue.
	Name() domain.Venue

	// SymbolFor maps a canonical symbol ("BTC-USDC") to the venue's native
	// spelling.
	SymbolFor(canonical string) string

	// BaseIncrement is the venue's base-asset lot size; order quantities are
	// rounded down to a multiple of it.
	BaseIncrement() decimal.Decimal

	// SubscribeOrderbook runs one streaming session, delivering decoded
	// snapshots to out until the context is cancelled or the transport
	// fails. It returns nil only on context cancellation; callers own the
	// restart policy.
	SubscribeOrderbook(ctx context.Context, symbol string, depth int, out chan<- domain.OrderbookSnapshot) error

	// FetchOrderbook fetches a one-shot snapshot over REST.
	FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error)

	// PlaceLimit submits a limit order and returns the venue order id.
	PlaceLimit(ctx context.Context, symbol string, side domain.OrderSide, baseAmount, limitPrice decimal.Decimal) (string, error)

	// PlaceMarket submits a market order and returns the venue order id.
	PlaceMarket(ctx context.Context, symbol string, side domain.OrderSide, baseAmount decimal.Decimal) (string, error)

	// Cancel cancels an open order. Returns domain.ErrAlreadyTerminal when
	// the order already reached a terminal state, domain.ErrNotFound when
	// the venue does not know the id.
	Cancel(ctx context.Context, symbol, orderID string) error

	// Query returns the current fill status of an order.
	Query(ctx context.Context, symbol, orderID string) (domain.OrderFill, error)

	// FetchBalances returns the free balances of the trading assets.
	FetchBalances(ctx context.Context) ([]domain.Balance, error)
}

// TradeStreamer is implemented by venues that expose a public trade prints
// stream in addition to the depth stream.
type TradeStreamer interface {
	SubscribeTrades(ctx context.Context, symbol string, out chan<- domain.Trade) error
}
