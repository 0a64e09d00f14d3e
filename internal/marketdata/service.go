// Package marketdata maintains the live per-venue orderbook view for one
// symbol: streaming subscriptions, validation, staleness-triggered REST
// fallback, and fan-out to listeners.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/exchange"
)

// Options configures the market-data service.
type Options struct {
	Symbol           string
	Depth            int
	ReconnectBackoff time.Duration
	// StaleAfter maps a venue to the streamed-book age beyond which the
	// REST fallback poller engages. Venues without an entry never fall back.
	StaleAfter       map[domain.Venue]time.Duration
	RESTPollInterval time.Duration
	// RESTMaxDeviation is the largest top-of-book distance, in quote units,
	// a fallback snapshot may have from the last streamed book and still be
	// applied.
	RESTMaxDeviation decimal.Decimal
}

func (o *Options) withDefaults() {
	if o.Depth <= 0 {
		o.Depth = 20
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = time.Second
	}
	if o.RESTPollInterval <= 0 {
		o.RESTPollInterval = time.Second
	}
	if o.RESTMaxDeviation.Sign() <= 0 {
		o.RESTMaxDeviation = decimal.RequireFromString("50")
	}
}

// venueState is the per-venue live view. The snapshot is published with an
// atomic pointer swap so readers never observe a half-replaced book.
type venueState struct {
	adapter    exchange.Adapter
	snap       atomic.Pointer[domain.OrderbookSnapshot]
	lastUpdate atomic.Int64 // UnixNano of last accepted snapshot
	rejected   atomic.Int64
	fallbacks  atomic.Int64
}

func (v *venueState) age(now time.Time) time.Duration {
	ns := v.lastUpdate.Load()
	if ns == 0 {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(time.Unix(0, ns))
}

type listener struct {
	ch      chan domain.OrderbookSnapshot
	dropped atomic.Int64
}

// Service runs one streaming session per venue, validates every decoded
// snapshot, and keeps the freshest accepted book available to readers.
type Service struct {
	opts   Options
	venues map[domain.Venue]*venueState
	logger *slog.Logger

	bookCache  domain.OrderbookCache // optional mirror, never on the hot path
	priceCache domain.PriceCache     // optional BBO mirror

	mu        sync.Mutex
	listeners map[*listener]struct{}
}

// New creates a Service over the given adapters. bookCache and priceCache are
// optional mirrors; pass nil to disable.
func New(opts Options, adapters []exchange.Adapter, bookCache domain.OrderbookCache, priceCache domain.PriceCache, logger *slog.Logger) *Service {
	opts.withDefaults()
	venues := make(map[domain.Venue]*venueState, len(adapters))
	for _, a := range adapters {
		venues[a.Name()] = &venueState{adapter: a}
	}
	return &Service{
		opts:       opts,
		venues:     venues,
		logger:     logger.With(slog.String("component", "marketdata")),
		bookCache:  bookCache,
		priceCache: priceCache,
		listeners:  make(map[*listener]struct{}),
	}
}

// Snapshot returns the last accepted book for the venue, if any.
func (s *Service) Snapshot(venue domain.Venue) (domain.OrderbookSnapshot, bool) {
	v, ok := s.venues[venue]
	if !ok {
		return domain.OrderbookSnapshot{}, false
	}
	p := v.snap.Load()
	if p == nil {
		return domain.OrderbookSnapshot{}, false
	}
	return *p, true
}

// Age returns how old the venue's last accepted snapshot is.
func (s *Service) Age(venue domain.Venue) time.Duration {
	v, ok := s.venues[venue]
	if !ok {
		return time.Duration(1<<63 - 1)
	}
	return v.age(time.Now())
}

// Rejected returns the count of snapshots the venue has had rejected.
func (s *Service) Rejected(venue domain.Venue) int64 {
	v, ok := s.venues[venue]
	if !ok {
		return 0
	}
	return v.rejected.Load()
}

// Subscribe registers a listener for accepted snapshots. Per-venue ordering
// is preserved; a slow listener drops frames rather than stalling ingestion.
// The returned cancel func unregisters the listener and closes its channel.
func (s *Service) Subscribe(buffer int) (<-chan domain.OrderbookSnapshot, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	l := &listener{ch: make(chan domain.OrderbookSnapshot, buffer)}
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.listeners[l]; ok {
			delete(s.listeners, l)
			close(l.ch)
		}
		s.mu.Unlock()
	}
	return l.ch, cancel
}

// Run starts one stream loop per venue plus the fallback pollers and blocks
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for venue, state := range s.venues {
		venue, state := venue, state
		g.Go(func() error { return s.streamLoop(ctx, venue, state) })
		if _, ok := s.opts.StaleAfter[venue]; ok {
			g.Go(func() error { return s.fallbackLoop(ctx, venue, state) })
		}
	}
	return g.Wait()
}

// streamLoop keeps one subscription alive, reconnecting after the configured
// backoff on any transport failure.
func (s *Service) streamLoop(ctx context.Context, venue domain.Venue, state *venueState) error {
	out := make(chan domain.OrderbookSnapshot, 32)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-out:
				if !ok {
					return
				}
				s.accept(ctx, state, snap, false)
			}
		}
	}()

	for {
		err := state.adapter.SubscribeOrderbook(ctx, s.opts.Symbol, s.opts.Depth, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Warn("stream disconnected, reconnecting",
				slog.String("venue", string(venue)),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.ReconnectBackoff):
		}
	}
}

// fallbackLoop polls REST depth whenever the streamed book goes stale. A
// fallback snapshot is applied only when its top of book stays within
// RESTMaxDeviation of the last streamed view, so a slow REST response cannot
// corrupt the book during a fast market.
func (s *Service) fallbackLoop(ctx context.Context, venue domain.Venue, state *venueState) error {
	staleAfter := s.opts.StaleAfter[venue]
	ticker := time.NewTicker(s.opts.RESTPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if state.age(time.Now()) <= staleAfter {
			continue
		}
		snap, err := state.adapter.FetchOrderbook(ctx, s.opts.Symbol, s.opts.Depth)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("fallback fetch failed",
				slog.String("venue", string(venue)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if last := state.snap.Load(); last != nil {
			if reason, ok := s.deviationReject(last, &snap); ok {
				state.rejected.Add(1)
				s.logger.Warn("fallback snapshot discarded",
					slog.String("venue", string(venue)),
					slog.String("reason", reason),
				)
				continue
			}
		}
		state.fallbacks.Add(1)
		s.accept(ctx, state, snap, true)
	}
}

// deviationReject reports whether the fallback snapshot's top of book has
// moved beyond RESTMaxDeviation from the last accepted view.
func (s *Service) deviationReject(last, next *domain.OrderbookSnapshot) (string, bool) {
	lastBid, okLB := last.BestBid()
	nextBid, okNB := next.BestBid()
	if okLB && okNB {
		d := nextBid.Price.Sub(lastBid.Price).Abs()
		if d.GreaterThan(s.opts.RESTMaxDeviation) {
			return fmt.Sprintf("bid moved %s", d.String()), true
		}
	}
	lastAsk, okLA := last.BestAsk()
	nextAsk, okNA := next.BestAsk()
	if okLA && okNA {
		d := nextAsk.Price.Sub(lastAsk.Price).Abs()
		if d.GreaterThan(s.opts.RESTMaxDeviation) {
			return fmt.Sprintf("ask moved %s", d.String()), true
		}
	}
	return "", false
}

// accept validates, publishes, mirrors, and fans out one snapshot. Rejected
// snapshots are counted and logged, never fatal.
func (s *Service) accept(ctx context.Context, state *venueState, snap domain.OrderbookSnapshot, fromFallback bool) {
	if err := snap.Validate(); err != nil {
		state.rejected.Add(1)
		s.logger.Warn("snapshot rejected",
			slog.String("venue", string(snap.Venue)),
			slog.String("error", err.Error()),
		)
		return
	}
	if last := state.snap.Load(); last != nil && snap.UpdateID < last.UpdateID {
		state.rejected.Add(1)
		s.logger.Warn("snapshot rejected",
			slog.String("venue", string(snap.Venue)),
			slog.String("error", domain.ErrStaleUpdateID.Error()),
			slog.Int64("update_id", snap.UpdateID),
			slog.Int64("last_update_id", last.UpdateID),
		)
		return
	}

	state.snap.Store(&snap)
	state.lastUpdate.Store(snap.CapturedAt.UnixNano())

	s.mirror(ctx, snap)
	s.fanOut(snap)

	if fromFallback {
		s.logger.Info("fallback snapshot applied",
			slog.String("venue", string(snap.Venue)),
			slog.Int64("update_id", snap.UpdateID),
		)
	}
}

func (s *Service) mirror(ctx context.Context, snap domain.OrderbookSnapshot) {
	if s.bookCache != nil {
		if err := s.bookCache.SetSnapshot(ctx, snap); err != nil {
			s.logger.Debug("book mirror write failed", slog.String("error", err.Error()))
		}
	}
	if s.priceCache != nil {
		bid, okB := snap.BestBid()
		ask, okA := snap.BestAsk()
		if okB && okA {
			if err := s.priceCache.SetBBO(ctx, snap.Venue, snap.Symbol, bid.Price, ask.Price, snap.CapturedAt); err != nil {
				s.logger.Debug("bbo mirror write failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Service) fanOut(snap domain.OrderbookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.listeners {
		select {
		case l.ch <- snap:
		default:
			l.dropped.Add(1)
		}
	}
}
