package marketdata

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/exchange"
)

// fakeAdapter streams whatever is pushed on stream and serves rest as the
// REST depth response.
type fakeAdapter struct {
	venue      domain.Venue
	stream     chan domain.OrderbookSnapshot
	rest       atomic.Pointer[domain.OrderbookSnapshot]
	restCalls  atomic.Int64
	streamErrs atomic.Int64
}

var _ exchange.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter(venue domain.Venue) *fakeAdapter {
	return &fakeAdapter{venue: venue, stream: make(chan domain.OrderbookSnapshot, 16)}
}

func (f *fakeAdapter) Name() domain.Venue                { return f.venue }
func (f *fakeAdapter) SymbolFor(canonical string) string { return canonical }
func (f *fakeAdapter) BaseIncrement() decimal.Decimal    { return decimal.New(1, -6) }

func (f *fakeAdapter) SubscribeOrderbook(ctx context.Context, symbol string, depth int, out chan<- domain.OrderbookSnapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-f.stream:
			select {
			case out <- snap:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *fakeAdapter) FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	f.restCalls.Add(1)
	if p := f.rest.Load(); p != nil {
		return *p, nil
	}
	return domain.OrderbookSnapshot{}, domain.ErrEmptyBook
}

func (f *fakeAdapter) PlaceLimit(ctx context.Context, symbol string, side domain.OrderSide, baseAmount, limitPrice decimal.Decimal) (string, error) {
	return "", domain.ErrNotFound
}

func (f *fakeAdapter) PlaceMarket(ctx context.Context, symbol string, side domain.OrderSide, baseAmount decimal.Decimal) (string, error) {
	return "", domain.ErrNotFound
}

func (f *fakeAdapter) Cancel(ctx context.Context, symbol, orderID string) error { return nil }

func (f *fakeAdapter) Query(ctx context.Context, symbol, orderID string) (domain.OrderFill, error) {
	return domain.OrderFill{}, domain.ErrNotFound
}

func (f *fakeAdapter) FetchBalances(ctx context.Context) ([]domain.Balance, error) { return nil, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func snapAt(venue domain.Venue, bid, ask string, updateID int64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Symbol: "BTC-USDC",
		Venue:  venue,
		Bids: []domain.PriceLevel{
			{Price: decimal.RequireFromString(bid), Size: decimal.RequireFromString("1")},
		},
		Asks: []domain.PriceLevel{
			{Price: decimal.RequireFromString(ask), Size: decimal.RequireFromString("1")},
		},
		UpdateID:   updateID,
		CapturedAt: time.Now(),
	}
}

func TestStreamedSnapshotPublished(t *testing.T) {
	fa := newFakeAdapter(domain.VenueMEXC)
	svc := New(Options{Symbol: "BTC-USDC"}, []exchange.Adapter{fa}, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	fa.stream <- snapAt(domain.VenueMEXC, "40000", "40001", 10)

	require.Eventually(t, func() bool {
		snap, ok := svc.Snapshot(domain.VenueMEXC)
		return ok && snap.UpdateID == 10
	}, time.Second, 5*time.Millisecond)
}

func TestCrossedBookRejected(t *testing.T) {
	fa := newFakeAdapter(domain.VenueBingX)
	svc := New(Options{Symbol: "BTC-USDC"}, []exchange.Adapter{fa}, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	fa.stream <- snapAt(domain.VenueBingX, "40000", "40001", 1)
	require.Eventually(t, func() bool {
		_, ok := svc.Snapshot(domain.VenueBingX)
		return ok
	}, time.Second, 5*time.Millisecond)

	// bid >= ask must be dropped; the prior view stays live.
	fa.stream <- snapAt(domain.VenueBingX, "40010", "40001", 2)
	require.Eventually(t, func() bool {
		return svc.Rejected(domain.VenueBingX) == 1
	}, time.Second, 5*time.Millisecond)

	snap, ok := svc.Snapshot(domain.VenueBingX)
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.UpdateID)
}

func TestUpdateIDRegressionRejected(t *testing.T) {
	fa := newFakeAdapter(domain.VenueMEXC)
	svc := New(Options{Symbol: "BTC-USDC"}, []exchange.Adapter{fa}, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	fa.stream <- snapAt(domain.VenueMEXC, "40000", "40001", 20)
	require.Eventually(t, func() bool {
		snap, ok := svc.Snapshot(domain.VenueMEXC)
		return ok && snap.UpdateID == 20
	}, time.Second, 5*time.Millisecond)

	fa.stream <- snapAt(domain.VenueMEXC, "40002", "40003", 15)
	require.Eventually(t, func() bool {
		return svc.Rejected(domain.VenueMEXC) == 1
	}, time.Second, 5*time.Millisecond)

	snap, _ := svc.Snapshot(domain.VenueMEXC)
	assert.Equal(t, int64(20), snap.UpdateID)
}

func TestFallbackAppliedWithinTolerance(t *testing.T) {
	fa := newFakeAdapter(domain.VenueMEXC)
	restSnap := snapAt(domain.VenueMEXC, "40020", "40021", 30)
	fa.rest.Store(&restSnap)

	svc := New(Options{
		Symbol:           "BTC-USDC",
		StaleAfter:       map[domain.Venue]time.Duration{domain.VenueMEXC: 20 * time.Millisecond},
		RESTPollInterval: 10 * time.Millisecond,
		RESTMaxDeviation: decimal.RequireFromString("50"),
	}, []exchange.Adapter{fa}, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	fa.stream <- snapAt(domain.VenueMEXC, "40000", "40001", 10)
	require.Eventually(t, func() bool {
		snap, ok := svc.Snapshot(domain.VenueMEXC)
		return ok && snap.UpdateID == 10
	}, time.Second, 5*time.Millisecond)

	// The stream goes quiet; the poller kicks in and the REST book, 20 quote
	// units away, is within tolerance.
	require.Eventually(t, func() bool {
		snap, ok := svc.Snapshot(domain.VenueMEXC)
		return ok && snap.UpdateID == 30
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFallbackDiscardedBeyondTolerance(t *testing.T) {
	fa := newFakeAdapter(domain.VenueMEXC)
	restSnap := snapAt(domain.VenueMEXC, "40200", "40201", 30)
	fa.rest.Store(&restSnap)

	svc := New(Options{
		Symbol:           "BTC-USDC",
		StaleAfter:       map[domain.Venue]time.Duration{domain.VenueMEXC: 20 * time.Millisecond},
		RESTPollInterval: 10 * time.Millisecond,
		RESTMaxDeviation: decimal.RequireFromString("50"),
	}, []exchange.Adapter{fa}, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	fa.stream <- snapAt(domain.VenueMEXC, "40000", "40001", 10)
	require.Eventually(t, func() bool {
		_, ok := svc.Snapshot(domain.VenueMEXC)
		return ok
	}, time.Second, 5*time.Millisecond)

	// The REST book has drifted 200 quote units from the last streamed view
	// and must be discarded.
	require.Eventually(t, func() bool {
		return fa.restCalls.Load() >= 2 && svc.Rejected(domain.VenueMEXC) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := svc.Snapshot(domain.VenueMEXC)
	assert.Equal(t, int64(10), snap.UpdateID)
}

func TestFallbackNotPolledWhenFresh(t *testing.T) {
	fa := newFakeAdapter(domain.VenueMEXC)
	svc := New(Options{
		Symbol:           "BTC-USDC",
		StaleAfter:       map[domain.Venue]time.Duration{domain.VenueMEXC: time.Hour},
		RESTPollInterval: 5 * time.Millisecond,
	}, []exchange.Adapter{fa}, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	fa.stream <- snapAt(domain.VenueMEXC, "40000", "40001", 1)
	require.Eventually(t, func() bool {
		_, ok := svc.Snapshot(domain.VenueMEXC)
		return ok
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fa.restCalls.Load())
}

func TestSubscribeFanOut(t *testing.T) {
	fa := newFakeAdapter(domain.VenueMEXC)
	svc := New(Options{Symbol: "BTC-USDC"}, []exchange.Adapter{fa}, nil, nil, testLogger())

	ch, cancelSub := svc.Subscribe(8)
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	fa.stream <- snapAt(domain.VenueMEXC, "40000", "40001", 1)
	fa.stream <- snapAt(domain.VenueMEXC, "40002", "40003", 2)

	// Per-venue ordering is preserved for a keeping-up listener.
	first := <-ch
	second := <-ch
	assert.Equal(t, int64(1), first.UpdateID)
	assert.Equal(t, int64(2), second.UpdateID)
}

func TestSnapshotUnknownVenue(t *testing.T) {
	svc := New(Options{Symbol: "BTC-USDC"}, nil, nil, nil, testLogger())
	_, ok := svc.Snapshot(domain.VenueMEXC)
	assert.False(t, ok)
}
