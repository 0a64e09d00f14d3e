// Package mexc implements the exchange adapter for the MEXC spot API:
// signed REST for orders and snapshots, streaming JSON limit-depth and
// binary protobuf aggregate-deals over WebSocket.
package mexc

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/exchange"
)

// Options configures the MEXC adapter.
type Options struct {
	RESTBaseURL    string
	WSEndpoints    []string
	APIKey         string
	APISecret      string
	PingInterval   time.Duration
	BaseIncrement  decimal.Decimal
	RequestsPerSec float64
}

// Adapter implements exchange.Adapter for MEXC.
type Adapter struct {
	rest          *restClient
	wsEndpoints   []string
	wsCounter     atomic.Uint64
	pingInterval  time.Duration
	baseIncrement decimal.Decimal
	logger        *slog.Logger
}

var _ exchange.Adapter = (*Adapter)(nil)
var _ exchange.TradeStreamer = (*Adapter)(nil)

// New creates a MEXC adapter.
func New(opts Options, logger *slog.Logger) *Adapter {
	endpoints := opts.WSEndpoints
	if len(endpoints) == 0 {
		endpoints = defaultWSEndpoints
	}
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	inc := opts.BaseIncrement
	if inc.Sign() <= 0 {
		inc = decimal.New(1, -6) // 0.000001 BTC lot
	}
	return &Adapter{
		rest:          newRESTClient(opts.RESTBaseURL, &crypto.HMACAuth{Key: opts.APIKey, Secret: opts.APISecret}, rps),
		wsEndpoints:   endpoints,
		pingInterval:  opts.PingInterval,
		baseIncrement: inc,
		logger:        logger.With(slog.String("component", "mexc")),
	}
}

// Name identifies the venue.
func (a *Adapter) Name() domain.Venue { return domain.VenueMEXC }

// SymbolFor maps "BTC-USDC" to the venue's "BTCUSDC" spelling.
func (a *Adapter) SymbolFor(canonical string) string {
	return strings.ReplaceAll(canonical, "-", "")
}

// BaseIncrement is the venue base-asset lot size.
func (a *Adapter) BaseIncrement() decimal.Decimal { return a.baseIncrement }

// SubscribeOrderbook runs one depth streaming session, delivering snapshots
// until the context ends or the transport fails.
func (a *Adapter) SubscribeOrderbook(ctx context.Context, symbol string, depth int, out chan<- domain.OrderbookSnapshot) error {
	native := a.SymbolFor(symbol)
	endpoint := nextEndpoint(a.wsEndpoints, &a.wsCounter)

	session, err := dialWS(ctx, endpoint, []string{depthChannel(native, depth)}, a.logger)
	if err != nil {
		return err
	}

	return session.run(ctx, a.pingInterval, func(msgType int, data []byte) {
		if msgType != websocket.TextMessage || isControlMessage(data) {
			return
		}
		var msg wsDepthMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			a.logger.Warn("depth frame decode failed", slog.String("error", err.Error()))
			return
		}
		if msg.Data.Bids == nil && msg.Data.Asks == nil {
			return
		}
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

// SubscribeTrades runs one aggregate-deals streaming session, decoding the
// binary protobuf frames into trade prints.
func (a *Adapter) SubscribeTrades(ctx context.Context, symbol string, out chan<- domain.Trade) error {
	native := a.SymbolFor(symbol)
	endpoint := nextEndpoint(a.wsEndpoints, &a.wsCounter)

	session, err := dialWS(ctx, endpoint, []string{aggreDealsChannel(native)}, a.logger)
	if err != nil {
		return err
	}

	return session.run(ctx, a.pingInterval, func(msgType int, data []byte) {
		if msgType != websocket.BinaryMessage {
			return
		}
		trades, err := decodeAggreDeals(data, symbol)
		if err != nil {
			a.logger.Warn("deals frame decode failed", slog.String("error", err.Error()))
			return
		}
		for _, t := range trades {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	})
}

// FetchOrderbook fetches a one-shot snapshot over REST.
func (a *Adapter) FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	resp, err := a.rest.depth(ctx, a.SymbolFor(symbol), depth)
	if err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	bids, err := parsePairs(resp.Bids)
	if err != nil {
		return domain.OrderbookSnapshot{}, &domain.TransportError{Venue: domain.VenueMEXC, Op: "depth", Err: err}
	}
	asks, err := parsePairs(resp.Asks)
	if err != nil {
		return domain.OrderbookSnapshot{}, &domain.TransportError{Venue: domain.VenueMEXC, Op: "depth", Err: err}
	}
	return domain.OrderbookSnapshot{
		Symbol:     symbol,
		Venue:      domain.VenueMEXC,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   resp.LastUpdateID,
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
		// The venue answers 400 for cancels on already-terminal orders.
		return domain.ErrAlreadyTerminal
	}
	return err
}

// Query returns the current fill status of an order.
func (a *Adapter) Query(ctx context.Context, symbol, orderID string) (domain.OrderFill, error) {
	resp, err := a.rest.queryOrder(ctx, a.SymbolFor(symbol), orderID)
	if err != nil {
		return domain.OrderFill{}, err
	}
	fill, err := resp.toOrderFill()
	if err != nil {
		return domain.OrderFill{}, &domain.TransportError{Venue: domain.VenueMEXC, Op: "query", Err: err}
	}
	return fill, nil
}

// FetchBalances returns the free spot balances.
func (a *Adapter) FetchBalances(ctx context.Context) ([]domain.Balance, error) {
	resp, err := a.rest.account(ctx)
	if err != nil {
		return nil, err
	}
	balances := make([]domain.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, &domain.TransportError{Venue: domain.VenueMEXC, Op: "account", Err: err}
		}
		balances = append(balances, domain.Balance{Venue: domain.VenueMEXC, Asset: b.Asset, Free: free})
	}
	return balances, nil
}
