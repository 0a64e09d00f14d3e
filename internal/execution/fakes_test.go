package execution

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/exchange"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lvl(price, size string) domain.PriceLevel {
	return domain.PriceLevel{Price: dec(price), Size: dec(size)}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// placeCall records one order submission to a fake venue.
type placeCall struct {
	Side   domain.OrderSide
	Type   domain.OrderType
	Base   decimal.Decimal
	Limit  decimal.Decimal
	Result string // order id handed back
	Err    error
}

// fakeVenue is a scripted exchange: placements consume placeE in order and
// take ids from nextID, queries consume queryScript in order (sticking on the
// last entry).
type fakeVenue struct {
	mu     sync.Mutex
	venue  domain.Venue
	calls  []placeCall
	placeE []error // error per placement, nil entries succeed
	nextID int

	queryScript []queryStep
	queryIdx    int

	cancelErr  error
	cancelled  []string
	balances   []domain.Balance
	balanceErr error

	// afterCancel, when set, is returned by Query for any cancelled order.
	afterCancel *domain.OrderFill
}

type queryStep struct {
	fill domain.OrderFill
	err  error
}

var _ exchange.Adapter = (*fakeVenue)(nil)

func (f *fakeVenue) Name() domain.Venue                { return f.venue }
func (f *fakeVenue) SymbolFor(canonical string) string { return canonical }
func (f *fakeVenue) BaseIncrement() decimal.Decimal    { return decimal.New(1, -6) }

func (f *fakeVenue) SubscribeOrderbook(ctx context.Context, symbol string, depth int, out chan<- domain.OrderbookSnapshot) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeVenue) FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	return domain.OrderbookSnapshot{}, domain.ErrEmptyBook
}

func (f *fakeVenue) place(side domain.OrderSide, typ domain.OrderType, base, limit decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.placeE) > 0 {
		err = f.placeE[0]
		f.placeE = f.placeE[1:]
	}
	call := placeCall{Side: side, Type: typ, Base: base, Limit: limit, Err: err}
	if err == nil {
		f.nextID++
		call.Result = "ord-" + strconv.Itoa(f.nextID)
	}
	f.calls = append(f.calls, call)
	return call.Result, err
}

func (f *fakeVenue) PlaceLimit(ctx context.Context, symbol string, side domain.OrderSide, baseAmount, limitPrice decimal.Decimal) (string, error) {
	return f.place(side, domain.OrderTypeLimit, baseAmount, limitPrice)
}

func (f *fakeVenue) PlaceMarket(ctx context.Context, symbol string, side domain.OrderSide, baseAmount decimal.Decimal) (string, error) {
	return f.place(side, domain.OrderTypeMarket, baseAmount, decimal.Zero)
}

func (f *fakeVenue) Cancel(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelErr
}

func (f *fakeVenue) Query(ctx context.Context, symbol, orderID string) (domain.OrderFill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.afterCancel != nil {
		for _, id := range f.cancelled {
			if id == orderID {
				return *f.afterCancel, nil
			}
		}
	}
	if len(f.queryScript) == 0 {
		return domain.OrderFill{}, domain.ErrNotFound
	}
	step := f.queryScript[f.queryIdx]
	if f.queryIdx < len(f.queryScript)-1 {
		f.queryIdx++
	}
	return step.fill, step.err
}

func (f *fakeVenue) FetchBalances(ctx context.Context) ([]domain.Balance, error) {
	return f.balances, f.balanceErr
}

func (f *fakeVenue) placedCalls() []placeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]placeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeBooks serves a scripted sequence of book pairs. A pair is read buy
// venue first, sell venue second; the sell-side read advances the sequence so
// the gate re-read observes the next pair.
type fakeBooks struct {
	mu    sync.Mutex
	seq   []map[domain.Venue]domain.OrderbookSnapshot
	reads int
}

func (b *fakeBooks) Snapshot(venue domain.Venue) (domain.OrderbookSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.seq) == 0 {
		return domain.OrderbookSnapshot{}, false
	}
	idx := b.reads
	if idx >= len(b.seq) {
		idx = len(b.seq) - 1
	}
	snap, ok := b.seq[idx][venue]
	if venue == domain.VenueBingX {
		b.reads++
	}
	return snap, ok
}

func bookPair(mexcAsk, bingxBid string) map[domain.Venue]domain.OrderbookSnapshot {
	return map[domain.Venue]domain.OrderbookSnapshot{
		domain.VenueMEXC: {
			Symbol:     "BTC-USDC",
			Venue:      domain.VenueMEXC,
			Bids:       []domain.PriceLevel{lvl("39990", "5")},
			Asks:       []domain.PriceLevel{lvl(mexcAsk, "5")},
			UpdateID:   1,
			CapturedAt: time.Now(),
		},
		domain.VenueBingX: {
			Symbol:     "BTC-USDC",
			Venue:      domain.VenueBingX,
			Bids:       []domain.PriceLevel{lvl(bingxBid, "5")},
			Asks:       []domain.PriceLevel{lvl("41000", "5")},
			UpdateID:   1,
			CapturedAt: time.Now(),
		},
	}
}

// memExecStore and memStuckStore are in-memory stand-ins for the Postgres
// stores.
type memExecStore struct {
	mu   sync.Mutex
	recs []domain.ExecutionRecord
}

func (s *memExecStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memExecStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

func (s *memExecStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ExecutionRecord, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *memExecStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionRecord, error) {
	return s.ListRecent(ctx, limit)
}

func (s *memExecStore) SumRealizedProfit(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, r := range s.recs {
		sum = sum.Add(r.RealizedProfit)
	}
	return sum, nil
}

func (s *memExecStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *memExecStore) records() []domain.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ExecutionRecord, len(s.recs))
	copy(out, s.recs)
	return out
}

type memStuckStore struct {
	mu  sync.Mutex
	pos []domain.StuckPosition
}

func (s *memStuckStore) Create(ctx context.Context, pos domain.StuckPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = append(s.pos, pos)
	return nil
}

func (s *memStuckStore) ListOpen(ctx context.Context, symbol string) ([]domain.StuckPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StuckPosition
	for _, p := range s.pos {
		if p.ClearedAt == nil && (symbol == "" || p.Symbol == symbol) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStuckStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for i := range s.pos {
		if s.pos[i].ID == id {
			s.pos[i].ClearedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

type memAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *memAlerter) Alert(ctx context.Context, subject, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
	return nil
}

func (a *memAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subjects)
}
