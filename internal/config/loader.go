package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setStr(&cfg.Trading.Symbol, "CROSSARB_TRADING_SYMBOL")
	setStr(&cfg.Trading.QuoteAsset, "CROSSARB_TRADING_QUOTE_ASSET")
	setDecimal(&cfg.Trading.MinProfitQuote, "CROSSARB_TRADING_MIN_PROFIT_QUOTE")
	setDecimal(&cfg.Trading.MinProfitPct, "CROSSARB_TRADING_MIN_PROFIT_PCT")
	setDecimal(&cfg.Trading.MaxBasePerTrade, "CROSSARB_TRADING_MAX_BASE_PER_TRADE")
	setDecimal(&cfg.Trading.MaxSlippageBps, "CROSSARB_TRADING_MAX_SLIPPAGE_BPS")
	setDuration(&cfg.Trading.RecheckInterval, "CROSSARB_TRADING_RECHECK_INTERVAL")
	setDuration(&cfg.Trading.OrderTimeout, "CROSSARB_TRADING_ORDER_TIMEOUT")
	setDuration(&cfg.Trading.OrderPoll, "CROSSARB_TRADING_ORDER_POLL")
	setInt(&cfg.Trading.UnknownAfter, "CROSSARB_TRADING_UNKNOWN_AFTER")
	setDecimal(&cfg.Trading.PreExecTolerancePct, "CROSSARB_TRADING_PRE_EXEC_PRICE_TOLERANCE_PCT")
	setInt(&cfg.Trading.OrderBookDepth, "CROSSARB_TRADING_ORDER_BOOK_DEPTH")
	setBool(&cfg.Trading.DryRun, "CROSSARB_TRADING_DRY_RUN")

	// ── MEXC ──
	setStr(&cfg.MEXC.ApiKey, "CROSSARB_MEXC_API_KEY")
	setStr(&cfg.MEXC.ApiSecret, "CROSSARB_MEXC_API_SECRET")
	setStr(&cfg.MEXC.RestBaseURL, "CROSSARB_MEXC_REST_BASE_URL")
	setStringSlice(&cfg.MEXC.WsEndpoints, "CROSSARB_MEXC_WS_ENDPOINTS")
	setDuration(&cfg.MEXC.PingInterval, "CROSSARB_MEXC_PING_INTERVAL")
	setBool(&cfg.MEXC.RestFallback, "CROSSARB_MEXC_REST_FALLBACK")
	setDuration(&cfg.MEXC.StaleAfter, "CROSSARB_MEXC_STALE_AFTER")
	setDecimal(&cfg.MEXC.RestMaxDeviationQuote, "CROSSARB_MEXC_REST_MAX_DEVIATION_QUOTE")
	setDecimal(&cfg.MEXC.BaseIncrement, "CROSSARB_MEXC_BASE_INCREMENT")
	setFloat64(&cfg.MEXC.RequestsPerSec, "CROSSARB_MEXC_REQUESTS_PER_SEC")

	// ── BingX ──
	setStr(&cfg.BingX.ApiKey, "CROSSARB_BINGX_API_KEY")
	setStr(&cfg.BingX.ApiSecret, "CROSSARB_BINGX_API_SECRET")
	setStr(&cfg.BingX.RestBaseURL, "CROSSARB_BINGX_REST_BASE_URL")
	setStr(&cfg.BingX.WsEndpoint, "CROSSARB_BINGX_WS_ENDPOINT")
	setInt(&cfg.BingX.Depth, "CROSSARB_BINGX_DEPTH")
	setDuration(&cfg.BingX.StaleAfter, "CROSSARB_BINGX_STALE_AFTER")
	setDecimal(&cfg.BingX.BaseIncrement, "CROSSARB_BINGX_BASE_INCREMENT")
	setFloat64(&cfg.BingX.RequestsPerSec, "CROSSARB_BINGX_REQUESTS_PER_SEC")

	// ── Recovery ──
	setInt(&cfg.Recovery.SellRetries, "CROSSARB_RECOVERY_SELL_RETRIES")
	setDecimal(&cfg.Recovery.EmergencyDiscountPct, "CROSSARB_RECOVERY_EMERGENCY_DISCOUNT_PCT")
	setBool(&cfg.Recovery.EmergencySellFirst, "CROSSARB_RECOVERY_EMERGENCY_SELL_FIRST")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "CROSSARB_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CROSSARB_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "CROSSARB_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "CROSSARB_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CROSSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CROSSARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CROSSARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CROSSARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setDecimal(dst *dec, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			dst.Decimal = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
