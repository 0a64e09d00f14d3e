// Package bingx implements the exchange adapter for the BingX spot API:
// signed REST for orders and snapshots, gzip-compressed JSON depth streaming
// over WebSocket.
package bingx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/exchange"
)

// Options configures the BingX adapter.
type Options struct {
	RESTBaseURL    string
	WSEndpoint     string
	APIKey         string
	APISecret      string
	BaseIncrement  decimal.Decimal
	RequestsPerSec float64
}

// Adapter implements exchange.Adapter for BingX.
type Adapter struct {
	rest          *restClient
	wsEndpoint    string
	baseIncrement decimal.Decimal
	logger        *slog.Logger
}

var _ exchange.Adapter = (*Adapter)(nil)

// New creates a BingX adapter.
func New(opts Options, logger *slog.Logger) *Adapter {
	endpoint := opts.WSEndpoint
	if endpoint == "" {
		endpoint = defaultWSEndpoint
	}
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	inc := opts.BaseIncrement
	if inc.Sign() <= 0 {
		inc = decimal.New(1, -6)
	}
	return &Adapter{
		rest:          newRESTClient(opts.RESTBaseURL, &crypto.HMACAuth{Key: opts.APIKey, Secret: opts.APISecret}, rps),
		wsEndpoint:    endpoint,
		baseIncrement: inc,
		logger:        logger.With(slog.String("component", "bingx")),
	}
}

// Name identifies the venue.
func (a *Adapter) Name() domain.Venue { return domain.VenueBingX }

// SymbolFor maps the canonical symbol to the venue spelling; BingX already
// uses the BASE-QUOTE form.
func (a *Adapter) SymbolFor(canonical string) string { return canonical }

// BaseIncrement is the venue base-asset lot size.
func (a *Adapter) BaseIncrement() decimal.Decimal { return a.baseIncrement }

// SubscribeOrderbook runs one depth streaming session, delivering snapshots
// until the context ends or the transport fails.
func (a *Adapter) SubscribeOrderbook(ctx context.Context, symbol string, depth int, out chan<- domain.OrderbookSnapshot) error {
	dataType := fmt.Sprintf("%s@depth%d", a.SymbolFor(symbol), depth)

	return runDepthStream(ctx, a.wsEndpoint, dataType, a.logger, func(msg *wsDepthMessage) {
		snap, err := msg.toSnapshot(symbol)
		if err != nil {
			a.logger.Warn("depth frame rejected", slog.String("error", err.Error()))
			return
		}
		select {
		case out <- snap:
		case <-ctx.Done():
		}
	})
}

// FetchOrderbook fetches a one-shot snapshot over REST.
func (a *Adapter) FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	data, err := a.rest.depth(ctx, a.SymbolFor(symbol), depth)
	if err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	bids, err := parsePairs(data.Bids)
	if err != nil {
		return domain.OrderbookSnapshot{}, &domain.TransportError{Venue: domain.VenueBingX, Op: "depth", Err: err}
	}
	asks, err := parsePairs(data.Asks)
	if err != nil {
		return domain.OrderbookSnapshot{}, &domain.TransportError{Venue: domain.VenueBingX, Op: "depth", Err: err}
	}
	if len(asks) > 1 && asks[0].Price.GreaterThan(asks[len(asks)-1].Price) {
		for i, j := 0, len(asks)-1; i < j; i, j = i+1, j-1 {
			asks[i], asks[j] = asks[j], asks[i]
		}
	}
	return domain.OrderbookSnapshot{
		Symbol:     symbol,
		Venue:      domain.VenueBingX,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   data.TS,
		CapturedAt: time.Now(),
	}, nil
}

// PlaceLimit submits a limit order.
func (a *Adapter) PlaceLimit(ctx context.Context, symbol string, side domain.OrderSide, baseAmount, limitPrice decimal.Decimal) (string, error) {
	return a.rest.placeOrder(ctx, a.SymbolFor(symbol), side, domain.OrderTypeLimit, baseAmount, limitPrice)
}

// PlaceMarket submits a market order.
func (a *Adapter) PlaceMarket(ctx context.Context, symbol string, side domain.OrderSide, baseAmount decimal.Decimal) (string, error) {
	return a.rest.placeOrder(ctx, a.SymbolFor(symbol), side, domain.OrderTypeMarket, baseAmount, decimal.Zero)
}

// Cancel cancels an open order.
func (a *Adapter) Cancel(ctx context.Context, symbol, orderID string) error {
	err := a.rest.cancelOrder(ctx, a.SymbolFor(symbol), orderID)
	if err != nil && domain.IsRejection(err) {
		return domain.ErrAlreadyTerminal
	}
	return err
}

// Query returns the current fill status of an order.
func (a *Adapter) Query(ctx context.Context, symbol, orderID string) (domain.OrderFill, error) {
	data, err := a.rest.queryOrder(ctx, a.SymbolFor(symbol), orderID)
	if err != nil {
		return domain.OrderFill{}, err
	}
	fill, err := data.toOrderFill()
	if err != nil {
		return domain.OrderFill{}, &domain.TransportError{Venue: domain.VenueBingX, Op: "query", Err: err}
	}
	return fill, nil
}

// FetchBalances returns the free spot balances.
func (a *Adapter) FetchBalances(ctx context.Context) ([]domain.Balance, error) {
	data, err := a.rest.balances(ctx)
	if err != nil {
		return nil, err
	}
	balances := make([]domain.Balance, 0, len(data.Balances))
	for _, b := range data.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, &domain.TransportError{Venue: domain.VenueBingX, Op: "balances", Err: err}
		}
		balances = append(balances, domain.Balance{Venue: domain.VenueBingX, Asset: b.Asset, Free: free})
	}
	return balances, nil
}
