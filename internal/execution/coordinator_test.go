package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/evaluator"
)

func testEvaluator() *evaluator.Evaluator {
	return evaluator.New(evaluator.Config{
		MinProfitQuote:  dec("10"),
		MinProfitPct:    dec("0.01"),
		MaxBasePerTrade: dec("5"),
		MaxSlippageBps:  dec("50"),
		BaseIncrement:   dec("0.000001"),
	}, testLogger())
}

func testCoordinator(books BookSource, buy, sell *fakeVenue, execs *memExecStore, stuck *memStuckStore, alerter Alerter) *Coordinator {
	return NewCoordinator(
		Config{
			Symbol:      "BTC-USDC",
			QuoteAsset:  "USDC",
			SellRetries: 2,
		},
		books,
		testEvaluator(),
		buy, sell,
		fastTracker(),
		execs, stuck, alerter, nil,
		testLogger(),
	)
}

func usdcBalance(amount string) []domain.Balance {
	return []domain.Balance{{Venue: domain.VenueMEXC, Asset: "USDC", Free: dec(amount)}}
}

func TestCyclePartialBuySellsRealizedFill(t *testing.T) {
	books := &fakeBooks{seq: []map[domain.Venue]domain.OrderbookSnapshot{
		bookPair("40000", "40100"),
	}}
	buy := &fakeVenue{
		venue:    domain.VenueMEXC,
		balances: usdcBalance("40000"),
		queryScript: []queryStep{
			{fill: domain.OrderFill{State: domain.LegPartiallyFilled, FilledBase: dec("0.6"), FilledQuote: dec("24000"), AvgPrice: dec("40000")}},
		},
		afterCancel: &domain.OrderFill{State: domain.LegCancelled, FilledBase: dec("0.6"), FilledQuote: dec("24000"), AvgPrice: dec("40000")},
	}
	sell := &fakeVenue{
		venue: domain.VenueBingX,
		queryScript: []queryStep{
			{fill: domain.OrderFill{State: domain.LegFilled, FilledBase: dec("0.6"), FilledQuote: dec("24060"), AvgPrice: dec("40100")}},
		},
	}
	execs := &memExecStore{}
	stuckStore := &memStuckStore{}

	c := testCoordinator(books, buy, sell, execs, stuckStore, nil)
	c.runCycle(context.Background())

	sellCalls := sell.placedCalls()
	require.Len(t, sellCalls, 1)
	assert.Equal(t, domain.OrderTypeMarket, sellCalls[0].Type)
	assert.True(t, sellCalls[0].Base.Equal(dec("0.6")), "sell base=%s", sellCalls[0].Base)

	recs := execs.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExecStatusCompleted, recs[0].Status)
	assert.True(t, recs[0].BoughtBase.Equal(dec("0.6")))
	assert.True(t, recs[0].SoldBase.Equal(dec("0.6")))
	assert.True(t, recs[0].RealizedProfit.Equal(dec("60")))
	assert.True(t, recs[0].SoldBase.LessThanOrEqual(recs[0].BoughtBase))
}

func TestCycleSellRejectionsEscalateToEmergencySell(t *testing.T) {
	books := &fakeBooks{seq: []map[domain.Venue]domain.OrderbookSnapshot{
		bookPair("40000", "40100"),
	}}
	buy := &fakeVenue{
		venue:    domain.VenueMEXC,
		balances: usdcBalance("20000"),
		queryScript: []queryStep{
			{fill: domain.OrderFill{State: domain.LegFilled, FilledBase: dec("0.5"), FilledQuote: dec("20000"), AvgPrice: dec("40000")}},
		},
	}
	reject := &domain.RejectionError{Venue: domain.VenueBingX, Code: "100400", Reason: "invalid size"}
	sell := &fakeVenue{
		venue:  domain.VenueBingX,
		placeE: []error{reject, reject, reject}, // first sell + two retries
		queryScript: []queryStep{
			{fill: domain.OrderFill{State: domain.LegFilled, FilledBase: dec("0.5"), FilledQuote: dec("19849.5"), AvgPrice: dec("39699")}},
		},
	}
	execs := &memExecStore{}
	stuckStore := &memStuckStore{}
	alerter := &memAlerter{}

	c := testCoordinator(books, buy, sell, execs, stuckStore, alerter)
	c.runCycle(context.Background())

	calls := sell.placedCalls()
	require.Len(t, calls, 4)
	last := calls[len(calls)-1]
	assert.Equal(t, domain.OrderTypeLimit, last.Type)
	// best bid 40100 discounted 1%
	assert.True(t, last.Limit.Equal(dec("39699")), "limit=%s", last.Limit)

	recs := execs.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExecStatusRecovered, recs[0].Status)
	assert.True(t, recs[0].SoldBase.Equal(dec("0.5")))
	assert.False(t, c.Stuck())
	assert.Zero(t, alerter.count())

	open, err := stuckStore.ListOpen(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCycleRepeatedSellFailureMarksStuck(t *testing.T) {
	books := &fakeBooks{seq: []map[domain.Venue]domain.OrderbookSnapshot{
		bookPair("40000", "40100"),
	}}
	buy := &fakeVenue{
		venue:    domain.VenueMEXC,
		balances: usdcBalance("20000"),
		queryScript: []queryStep{
			{fill: domain.OrderFill{State: domain.LegFilled, FilledBase: dec("0.5"), FilledQuote: dec("20000"), AvgPrice: dec("40000")}},
		},
	}
	reject := &domain.RejectionError{Venue: domain.VenueBingX, Code: "100400", Reason: "trading halted"}
	sell := &fakeVenue{
		venue:  domain.VenueBingX,
		placeE: []error{reject, reject, reject, reject}, // sell, retries, emergency
	}
	execs := &memExecStore{}
	stuckStore := &memStuckStore{}
	alerter := &memAlerter{}

	c := testCoordinator(books, buy, sell, execs, stuckStore, alerter)
	c.runCycle(context.Background())

	recs := execs.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExecStatusStuck, recs[0].Status)
	assert.True(t, c.Stuck())
	assert.Equal(t, 1, alerter.count())

	open, err := stuckStore.ListOpen(context.Background(), "BTC-USDC")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.VenueBingX, open[0].Venue)
	assert.True(t, open[0].BaseAmount.Equal(dec("0.5")))
	assert.Equal(t, recs[0].ID, open[0].ExecutionID)
}

func TestCycleGateAbandonsOnAskDrift(t *testing.T) {
	// Plan computed at ask 40000; by the gate re-check the ask has drifted
	// 2.5%, beyond the 2% tolerance. The sell side keeps the pair profitable
	// so only the drift check can fail.
	books := &fakeBooks{seq: []map[domain.Venue]domain.OrderbookSnapshot{
		bookPair("40000", "40100"),
		bookPair("41000", "41200"),
	}}
	buy := &fakeVenue{venue: domain.VenueMEXC, balances: usdcBalance("40000")}
	sell := &fakeVenue{venue: domain.VenueBingX}
	execs := &memExecStore{}
	stuckStore := &memStuckStore{}

	c := testCoordinator(books, buy, sell, execs, stuckStore, nil)
	c.runCycle(context.Background())

	assert.Empty(t, buy.placedCalls())
	assert.Empty(t, sell.placedCalls())
	assert.Empty(t, execs.records())
}

func TestCycleNoFillEndsFlat(t *testing.T) {
	books := &fakeBooks{seq: []map[domain.Venue]domain.OrderbookSnapshot{
		bookPair("40000", "40100"),
	}}
	buy := &fakeVenue{
		venue:    domain.VenueMEXC,
		balances: usdcBalance("40000"),
		queryScript: []queryStep{
			{fill: domain.OrderFill{State: domain.LegCancelled}},
		},
	}
	sell := &fakeVenue{venue: domain.VenueBingX}
	execs := &memExecStore{}

	c := testCoordinator(books, buy, sell, execs, &memStuckStore{}, nil)
	c.runCycle(context.Background())

	assert.Empty(t, sell.placedCalls())
	recs := execs.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExecStatusNoFill, recs[0].Status)
	assert.True(t, recs[0].BoughtBase.IsZero())
}

func TestCycleUnknownBuyResolvesToFilled(t *testing.T) {
	books := &fakeBooks{seq: []map[domain.Venue]domain.OrderbookSnapshot{
		bookPair("40000", "40100"),
	}}
	buy := &fakeVenue{
		venue:    domain.VenueMEXC,
		balances: usdcBalance("40000"),
		queryScript: []queryStep{
			// Four failures: two polls' worth with the single retry, enough
			// to reach unknown with UnknownAfter=2.
			{err: domain.ErrWSDisconnect},
			{err: domain.ErrWSDisconnect},
			{err: domain.ErrWSDisconnect},
			{err: domain.ErrWSDisconnect},
			// The recovery re-query then gets a conclusive answer.
			{fill: domain.OrderFill{State: domain.LegFilled, FilledBase: dec("1"), FilledQuote: dec("40000"), AvgPrice: dec("40000")}},
		},
	}
	sell := &fakeVenue{
		venue: domain.VenueBingX,
		queryScript: []queryStep{
			{fill: domain.OrderFill{State: domain.LegFilled, FilledBase: dec("1"), FilledQuote: dec("40075"), AvgPrice: dec("40075")}},
		},
	}
	execs := &memExecStore{}

	c := testCoordinator(books, buy, sell, execs, &memStuckStore{}, nil)
	c.runCycle(context.Background())

	sellCalls := sell.placedCalls()
	require.Len(t, sellCalls, 1)
	assert.True(t, sellCalls[0].Base.Equal(dec("1")))

	recs := execs.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExecStatusCompleted, recs[0].Status)
	assert.NotEmpty(t, recs[0].RecoveryActions)
}

func TestRunRefusesToStartWithOpenStuckPosition(t *testing.T) {
	stuckStore := &memStuckStore{}
	require.NoError(t, stuckStore.Create(context.Background(), domain.StuckPosition{
		ID:         "pos-1",
		Symbol:     "BTC-USDC",
		Venue:      domain.VenueBingX,
		BaseAmount: dec("0.5"),
		Reason:     "left over from previous run",
		CreatedAt:  time.Now(),
	}))

	c := testCoordinator(&fakeBooks{}, &fakeVenue{venue: domain.VenueMEXC}, &fakeVenue{venue: domain.VenueBingX}, &memExecStore{}, stuckStore, nil)
	err := c.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrStuck)
}

func TestDryRunSimulatesFills(t *testing.T) {
	books := &fakeBooks{seq: []map[domain.Venue]domain.OrderbookSnapshot{
		bookPair("40000", "40100"),
	}}
	buy := &fakeVenue{venue: domain.VenueMEXC}
	sell := &fakeVenue{venue: domain.VenueBingX}
	execs := &memExecStore{}

	c := NewCoordinator(
		Config{Symbol: "BTC-USDC", QuoteAsset: "USDC", DryRun: true},
		books, testEvaluator(), buy, sell, fastTracker(),
		execs, &memStuckStore{}, nil, nil, testLogger(),
	)
	c.runCycle(context.Background())

	assert.Empty(t, buy.placedCalls())
	assert.Empty(t, sell.placedCalls())

	recs := execs.records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].DryRun)
	assert.Equal(t, domain.ExecStatusCompleted, recs[0].Status)
	assert.True(t, recs[0].SoldBase.Equal(recs[0].BoughtBase))
}
