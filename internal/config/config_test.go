package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[trading]
symbol = "ETH-USDC"
quote_asset = "USDC"
min_profit_quote = "2.5"
order_timeout = "45s"
dry_run = true

[mexc]
rest_max_deviation_quote = "75"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETH-USDC", cfg.Trading.Symbol)
	assert.True(t, cfg.Trading.MinProfitQuote.Equal(d("2.5").Decimal))
	assert.Equal(t, 45*time.Second, cfg.Trading.OrderTimeout.Duration)
	assert.True(t, cfg.MEXC.RestMaxDeviationQuote.Equal(d("75").Decimal))
	// untouched keys keep their defaults
	assert.Equal(t, 500*time.Millisecond, cfg.Trading.OrderPoll.Duration)
	assert.Equal(t, 20, cfg.Trading.OrderBookDepth)
	assert.Len(t, cfg.MEXC.WsEndpoints, 2)

	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsImpreciseDecimal(t *testing.T) {
	// Monetary keys must be quoted strings; a bare float fails to decode into
	// the exact-decimal wrapper rather than silently rounding.
	path := writeConfig(t, `
[trading]
min_profit_quote = 2.5
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[trading]
max_base_per_trade = "0.02"
`)
	t.Setenv("CROSSARB_TRADING_MAX_BASE_PER_TRADE", "0.005")
	t.Setenv("CROSSARB_MEXC_API_KEY", "mk")
	t.Setenv("CROSSARB_MEXC_WS_ENDPOINTS", "wss://a.example/ws, wss://b.example/ws")
	t.Setenv("CROSSARB_TRADING_RECHECK_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Trading.MaxBasePerTrade.Equal(d("0.005").Decimal))
	assert.Equal(t, "mk", cfg.MEXC.ApiKey)
	assert.Equal(t, []string{"wss://a.example/ws", "wss://b.example/ws"}, cfg.MEXC.WsEndpoints)
	assert.Equal(t, 250*time.Millisecond, cfg.Trading.RecheckInterval.Duration)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Symbol = "BTCUSDC"
	cfg.Trading.MaxBasePerTrade = d("0")
	cfg.Trading.OrderPoll = duration{time.Minute} // longer than timeout
	cfg.Trading.DryRun = true
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "symbol must have BASE-QUOTE form")
	assert.ErrorContains(t, err, "max_base_per_trade must be > 0")
	assert.ErrorContains(t, err, "order_poll must be shorter than order_timeout")
	assert.ErrorContains(t, err, "redis: addr must not be empty")
}

func TestValidateRequiresCredentialsForLiveTrading(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "mexc: api_key and api_secret are required")
	assert.ErrorContains(t, err, "bingx: api_key and api_secret are required")

	cfg.MEXC.ApiKey, cfg.MEXC.ApiSecret = "k", "s"
	cfg.BingX.ApiKey, cfg.BingX.ApiSecret = "k", "s"
	assert.NoError(t, cfg.Validate())
}

func TestValidateQuoteAssetMustMatchSymbol(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.DryRun = true
	cfg.Trading.QuoteAsset = "USDT"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, `quote_asset "USDT" does not match symbol`)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.MEXC.ApiSecret = "sekrit"
	cfg.Postgres.Password = "pg"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.MEXC.ApiSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// the original is untouched
	assert.Equal(t, "sekrit", cfg.MEXC.ApiSecret)

	red.MEXC.WsEndpoints[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.MEXC.WsEndpoints[0])
}
