// Package config defines the top-level configuration for the crossarb engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Trading  TradingConfig  `toml:"trading"`
	MEXC     MEXCConfig     `toml:"mexc"`
	BingX    BingXConfig    `toml:"bingx"`
	Recovery RecoveryConfig `toml:"recovery"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// TradingConfig holds the pair definition, profitability gates, and loop
// timings. Monetary thresholds decode from quoted TOML strings into exact
// decimals.
type TradingConfig struct {
	Symbol              string   `toml:"symbol"`
	QuoteAsset          string   `toml:"quote_asset"`
	MinProfitQuote      dec      `toml:"min_profit_quote"`
	MinProfitPct        dec      `toml:"min_profit_pct"`
	MaxBasePerTrade     dec      `toml:"max_base_per_trade"`
	MaxSlippageBps      dec      `toml:"max_slippage_bps"`
	RecheckInterval     duration `toml:"recheck_interval"`
	OrderTimeout        duration `toml:"order_timeout"`
	OrderPoll           duration `toml:"order_poll"`
	UnknownAfter        int      `toml:"unknown_after"`
	PreExecTolerancePct dec      `toml:"pre_exec_price_tolerance_pct"`
	OrderBookDepth      int      `toml:"order_book_depth"`
	DryRun              bool     `toml:"dry_run"`
}

// MEXCConfig holds MEXC API credentials, endpoints, and feed tuning.
type MEXCConfig struct {
	ApiKey                string   `toml:"api_key"`
	ApiSecret             string   `toml:"api_secret"`
	RestBaseURL           string   `toml:"rest_base_url"`
	WsEndpoints           []string `toml:"ws_endpoints"`
	PingInterval          duration `toml:"ping_interval"`
	RestFallback          bool     `toml:"rest_fallback"`
	StaleAfter            duration `toml:"stale_after"`
	RestMaxDeviationQuote dec      `toml:"rest_max_deviation_quote"`
	BaseIncrement         dec      `toml:"base_increment"`
	RequestsPerSec        float64  `toml:"requests_per_sec"`
}

// BingXConfig holds BingX API credentials, endpoints, and feed tuning.
type BingXConfig struct {
	ApiKey         string   `toml:"api_key"`
	ApiSecret      string   `toml:"api_secret"`
	RestBaseURL    string   `toml:"rest_base_url"`
	WsEndpoint     string   `toml:"ws_endpoint"`
	Depth          int      `toml:"depth"`
	StaleAfter     duration `toml:"stale_after"`
	BaseIncrement  dec      `toml:"base_increment"`
	RequestsPerSec float64  `toml:"requests_per_sec"`
}

// RecoveryConfig holds the unwind policy for desynchronized cycles.
type RecoveryConfig struct {
	SellRetries          int  `toml:"sell_retries"`
	EmergencyDiscountPct dec  `toml:"emergency_discount_pct"`
	EmergencySellFirst   bool `toml:"emergency_sell_first"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the execution-record archival schedule.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// dec is a wrapper around decimal.Decimal that supports TOML string decoding.
// Monetary thresholds are written as quoted strings ("0.05") in the TOML
// file; a bare float literal would lose exactness before it ever reached the
// decoder.
type dec struct {
	decimal.Decimal
}

// UnmarshalText implements encoding.TextUnmarshaler for exact decimal strings.
func (d *dec) UnmarshalText(text []byte) error {
	var err error
	d.Decimal, err = decimal.NewFromString(string(text))
	return err
}

// UnmarshalTOML accepts only quoted TOML strings; a bare number is rejected
// so a float literal never reaches the exact decimal.
func (d *dec) UnmarshalTOML(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("decimal value must be a quoted string, got %T", v)
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d dec) MarshalText() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

func d(s string) dec { return dec{decimal.RequireFromString(s)} }

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			Symbol:              "BTC-USDC",
			QuoteAsset:          "USDC",
			MinProfitQuote:      d("1"),
			MinProfitPct:        d("0.05"),
			MaxBasePerTrade:     d("0.01"),
			MaxSlippageBps:      d("50"),
			RecheckInterval:     duration{time.Second},
			OrderTimeout:        duration{30 * time.Second},
			OrderPoll:           duration{500 * time.Millisecond},
			UnknownAfter:        3,
			PreExecTolerancePct: d("2"),
			OrderBookDepth:      20,
			DryRun:              false,
		},
		MEXC: MEXCConfig{
			RestBaseURL: "https://api.mexc.com",
			WsEndpoints: []string{
				"wss://wbs-api.mexc.com/ws",
				"wss://wbs.mexc.com/ws",
			},
			PingInterval:          duration{20 * time.Second},
			RestFallback:          true,
			StaleAfter:            duration{2 * time.Second},
			RestMaxDeviationQuote: d("50"),
			BaseIncrement:         d("0.000001"),
			RequestsPerSec:        10,
		},
		BingX: BingXConfig{
			RestBaseURL:    "https://open-api.bingx.com",
			WsEndpoint:     "wss://open-api-ws.bingx.com/market",
			Depth:          20,
			StaleAfter:     duration{5 * time.Second},
			BaseIncrement:  d("0.000001"),
			RequestsPerSec: 10,
		},
		Recovery: RecoveryConfig{
			SellRetries:          2,
			EmergencyDiscountPct: d("1"),
			EmergencySellFirst:   false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			LockTTL:    duration{2 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"stuck", "recovered", "startup"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	t := &c.Trading
	base, quote, ok := strings.Cut(t.Symbol, "-")
	if !ok || base == "" || quote == "" {
		errs = append(errs, fmt.Sprintf("trading: symbol must have BASE-QUOTE form, got %q", t.Symbol))
	} else if t.QuoteAsset != "" && t.QuoteAsset != quote {
		errs = append(errs, fmt.Sprintf("trading: quote_asset %q does not match symbol %q", t.QuoteAsset, t.Symbol))
	}
	if t.MinProfitQuote.Sign() < 0 {
		errs = append(errs, "trading: min_profit_quote must be >= 0")
	}
	if t.MinProfitPct.Sign() < 0 {
		errs = append(errs, "trading: min_profit_pct must be >= 0")
	}
	if t.MaxBasePerTrade.Sign() <= 0 {
		errs = append(errs, "trading: max_base_per_trade must be > 0")
	}
	if t.MaxSlippageBps.Sign() < 0 {
		errs = append(errs, "trading: max_slippage_bps must be >= 0")
	}
	if t.RecheckInterval.Duration <= 0 {
		errs = append(errs, "trading: recheck_interval must be > 0")
	}
	if t.OrderTimeout.Duration <= 0 {
		errs = append(errs, "trading: order_timeout must be > 0")
	}
	if t.OrderPoll.Duration <= 0 {
		errs = append(errs, "trading: order_poll must be > 0")
	} else if t.OrderTimeout.Duration > 0 && t.OrderPoll.Duration >= t.OrderTimeout.Duration {
		errs = append(errs, "trading: order_poll must be shorter than order_timeout")
	}
	if t.UnknownAfter < 1 {
		errs = append(errs, "trading: unknown_after must be >= 1")
	}
	if t.PreExecTolerancePct.Sign() < 0 {
		errs = append(errs, "trading: pre_exec_price_tolerance_pct must be >= 0")
	}
	if t.OrderBookDepth < 1 {
		errs = append(errs, "trading: order_book_depth must be >= 1")
	}

	// Venue credentials are only required for live trading.
	if !t.DryRun {
		if c.MEXC.ApiKey == "" || c.MEXC.ApiSecret == "" {
			errs = append(errs, "mexc: api_key and api_secret are required unless trading.dry_run is set")
		}
		if c.BingX.ApiKey == "" || c.BingX.ApiSecret == "" {
			errs = append(errs, "bingx: api_key and api_secret are required unless trading.dry_run is set")
		}
	}
	if c.MEXC.RestBaseURL == "" {
		errs = append(errs, "mexc: rest_base_url must not be empty")
	}
	if len(c.MEXC.WsEndpoints) == 0 {
		errs = append(errs, "mexc: ws_endpoints must list at least one endpoint")
	}
	if c.MEXC.PingInterval.Duration <= 0 {
		errs = append(errs, "mexc: ping_interval must be > 0")
	}
	if c.MEXC.RestFallback {
		if c.MEXC.StaleAfter.Duration <= 0 {
			errs = append(errs, "mexc: stale_after must be > 0 when rest_fallback is enabled")
		}
		if c.MEXC.RestMaxDeviationQuote.Sign() <= 0 {
			errs = append(errs, "mexc: rest_max_deviation_quote must be > 0 when rest_fallback is enabled")
		}
	}
	if c.MEXC.BaseIncrement.Sign() <= 0 {
		errs = append(errs, "mexc: base_increment must be > 0")
	}
	if c.BingX.RestBaseURL == "" {
		errs = append(errs, "bingx: rest_base_url must not be empty")
	}
	if c.BingX.WsEndpoint == "" {
		errs = append(errs, "bingx: ws_endpoint must not be empty")
	}
	if c.BingX.Depth < 1 {
		errs = append(errs, "bingx: depth must be >= 1")
	}
	if c.BingX.BaseIncrement.Sign() <= 0 {
		errs = append(errs, "bingx: base_increment must be > 0")
	}

	// Recovery
	if c.Recovery.SellRetries < 0 {
		errs = append(errs, "recovery: sell_retries must be >= 0")
	}
	if c.Recovery.EmergencyDiscountPct.Sign() < 0 ||
		c.Recovery.EmergencyDiscountPct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		errs = append(errs, "recovery: emergency_discount_pct must be in [0, 100)")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be > 0")
	}

	// S3 only matters when archival is enabled.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify — Telegram fields must be set together, or both empty.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
