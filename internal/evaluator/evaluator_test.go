package evaluator

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lvl(price, size string) domain.PriceLevel {
	return domain.PriceLevel{Price: dec(price), Size: dec(size)}
}

func buySnap(askPrice, askSize string, updateID int64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Symbol:     "BTC-USDC",
		Venue:      domain.VenueMEXC,
		Bids:       []domain.PriceLevel{lvl("39990", "5")},
		Asks:       []domain.PriceLevel{lvl(askPrice, askSize)},
		UpdateID:   updateID,
		CapturedAt: time.Now(),
	}
}

func sellSnap(bids []domain.PriceLevel, updateID int64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Symbol:     "BTC-USDC",
		Venue:      domain.VenueBingX,
		Bids:       bids,
		Asks:       []domain.PriceLevel{lvl("41000", "5")},
		UpdateID:   updateID,
		CapturedAt: time.Now(),
	}
}

func defaultConfig() Config {
	return Config{
		MinProfitQuote:  dec("10"),
		MinProfitPct:    dec("0.01"), // 1 bps floor
		MaxBasePerTrade: dec("5"),
		MaxSlippageBps:  dec("50"),
		BaseIncrement:   dec("0.000001"),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestEvaluateCleanProfit(t *testing.T) {
	e := New(defaultConfig(), testLogger())

	plan, err := e.Evaluate(
		buySnap("40000", "1", 7),
		sellSnap([]domain.PriceLevel{lvl("40100", "0.5"), lvl("40050", "0.5")}, 9),
		dec("40000"),
	)
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.True(t, plan.BaseAmount.Equal(dec("1")), "x=%s", plan.BaseAmount)
	assert.True(t, plan.QuoteCost.Equal(dec("40000")))
	assert.True(t, plan.QuoteProceeds.Equal(dec("40075")))
	assert.True(t, plan.ExpectedProfit.Equal(dec("75")))
	assert.True(t, plan.ProfitBps.Equal(dec("18.75")), "bps=%s", plan.ProfitBps)
	assert.True(t, plan.SlippageBps.Equal(dec("18.75")))
	assert.Equal(t, int64(7), plan.BuyUpdateID)
	assert.Equal(t, int64(9), plan.SellUpdateID)
	assert.False(t, plan.DepthLimited)
}

func TestEvaluateDepthLimited(t *testing.T) {
	e := New(defaultConfig(), testLogger())

	plan, err := e.Evaluate(
		buySnap("40000", "1", 1),
		sellSnap([]domain.PriceLevel{lvl("40100", "0.3")}, 2),
		dec("1000000000"),
	)
	require.NoError(t, err)

	assert.True(t, plan.BaseAmount.Equal(dec("0.3")))
	assert.True(t, plan.QuoteCost.Equal(dec("12000")))
	assert.True(t, plan.QuoteProceeds.Equal(dec("12030")))
	assert.True(t, plan.ExpectedProfit.Equal(dec("30")))
	assert.True(t, plan.DepthLimited)
}

func TestEvaluateUnprofitable(t *testing.T) {
	e := New(defaultConfig(), testLogger())

	plan, err := e.Evaluate(
		buySnap("40100", "1", 1),
		sellSnap([]domain.PriceLevel{lvl("40050", "1")}, 2),
		dec("40100"),
	)
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, ErrBelowMinProfit)
}

func TestEvaluateNoAsk(t *testing.T) {
	e := New(defaultConfig(), testLogger())

	buy := buySnap("40000", "1", 1)
	buy.Asks = nil
	_, err := e.Evaluate(buy, sellSnap([]domain.PriceLevel{lvl("40100", "1")}, 2), dec("40000"))
	assert.ErrorIs(t, err, ErrNoAsk)
}

func TestEvaluateNoBidDepth(t *testing.T) {
	e := New(defaultConfig(), testLogger())

	_, err := e.Evaluate(buySnap("40000", "1", 1), sellSnap(nil, 2), dec("40000"))
	assert.ErrorIs(t, err, ErrNoBidDepth)
}

func TestEvaluateFlatTailTrimmed(t *testing.T) {
	e := New(defaultConfig(), testLogger())

	// The second bid level sits exactly at the buy price; selling into it
	// adds nothing, so the smaller size wins.
	plan, err := e.Evaluate(
		buySnap("40000", "1", 1),
		sellSnap([]domain.PriceLevel{lvl("40100", "0.5"), lvl("40000", "0.5")}, 2),
		dec("40000"),
	)
	require.NoError(t, err)

	assert.True(t, plan.BaseAmount.Equal(dec("0.5")), "x=%s", plan.BaseAmount)
	assert.True(t, plan.ExpectedProfit.Equal(dec("50")))
}

func TestEvaluateRoundsDownWhenBalanceBinds(t *testing.T) {
	cfg := defaultConfig()
	cfg.BaseIncrement = dec("0.001")
	e := New(cfg, testLogger())

	plan, err := e.Evaluate(
		buySnap("40000", "3", 1),
		sellSnap([]domain.PriceLevel{lvl("40100", "3")}, 2),
		dec("40001"), // 1.000025 base by balance
	)
	require.NoError(t, err)

	assert.True(t, plan.BaseAmount.Equal(dec("1")), "x=%s", plan.BaseAmount)
}

func TestEvaluateMaxBaseCap(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxBasePerTrade = dec("0.25")
	e := New(cfg, testLogger())

	plan, err := e.Evaluate(
		buySnap("40000", "1", 1),
		sellSnap([]domain.PriceLevel{lvl("40100", "2")}, 2),
		dec("1000000"),
	)
	require.NoError(t, err)
	assert.True(t, plan.BaseAmount.Equal(dec("0.25")))
}

func TestEvaluateSlippageTooHigh(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxSlippageBps = dec("10")
	e := New(cfg, testLogger())

	// 18.75 bps of upside slippage exceeds the 10 bps cap.
	_, err := e.Evaluate(
		buySnap("40000", "1", 1),
		sellSnap([]domain.PriceLevel{lvl("40100", "0.5"), lvl("40050", "0.5")}, 2),
		dec("40000"),
	)
	assert.ErrorIs(t, err, ErrSlippageTooHigh)
}

func TestEvaluateNegativeSlippage(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinProfitQuote = dec("-1000") // let the profit gate pass
	cfg.MinProfitPct = dec("-1")
	e := New(cfg, testLogger())

	_, err := e.Evaluate(
		buySnap("40100", "1", 1),
		sellSnap([]domain.PriceLevel{lvl("40050", "1")}, 2),
		dec("40100"),
	)
	assert.ErrorIs(t, err, ErrNegativeSlippage)
}

func TestEvaluateDeterministic(t *testing.T) {
	e := New(defaultConfig(), testLogger())
	buy := buySnap("40000", "1", 1)
	sell := sellSnap([]domain.PriceLevel{lvl("40100", "0.5"), lvl("40050", "0.5")}, 2)

	a, err := e.Evaluate(buy, sell, dec("40000"))
	require.NoError(t, err)
	b, err := e.Evaluate(buy, sell, dec("40000"))
	require.NoError(t, err)

	assert.True(t, a.BaseAmount.Equal(b.BaseAmount))
	assert.True(t, a.ExpectedProfit.Equal(b.ExpectedProfit))
	assert.True(t, a.SlippageBps.Equal(b.SlippageBps))
}
