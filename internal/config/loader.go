package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HEDGERUN_* environment variable overrides, and
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

// applyEnvOverrides reads well-known HEDGERUN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "HEDGERUN_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.FunderAddress, "HEDGERUN_POLYMARKET_FUNDER_ADDRESS")
	setStr(&cfg.Polymarket.ApiKey, "HEDGERUN_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "HEDGERUN_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "HEDGERUN_POLYMARKET_API_PASSPHRASE")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKeyID, "HEDGERUN_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "HEDGERUN_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "HEDGERUN_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "HEDGERUN_KALSHI_WS_URL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HEDGERUN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HEDGERUN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGERUN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGERUN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGERUN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGERUN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGERUN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGERUN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGERUN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGERUN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HEDGERUN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGERUN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGERUN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGERUN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGERUN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGERUN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.FeedChannel, "HEDGERUN_REDIS_FEED_CHANNEL")

	// ── Risk ──
	setFloat64(&cfg.Risk.MinBet, "HEDGERUN_RISK_MIN_BET")
	setFloat64(&cfg.Risk.MaxBet, "HEDGERUN_RISK_MAX_BET")
	setFloat64(&cfg.Risk.MinROI, "HEDGERUN_RISK_MIN_ROI")
	setFloat64(&cfg.Risk.MaxROI, "HEDGERUN_RISK_MAX_ROI")
	setInt(&cfg.Risk.MaxDailyTrades, "HEDGERUN_RISK_MAX_DAILY_TRADES")
	setFloat64(&cfg.Risk.MaxDailyLoss, "HEDGERUN_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.MinVenueBalance, "HEDGERUN_RISK_MIN_VENUE_BALANCE")

	// ── Executor ──
	setDuration(&cfg.Executor.LegTimeout, "HEDGERUN_EXECUTOR_LEG_TIMEOUT")
	setDuration(&cfg.Executor.RollbackTimeout, "HEDGERUN_EXECUTOR_ROLLBACK_TIMEOUT")
	setFloat64(&cfg.Executor.MaxSlippage, "HEDGERUN_EXECUTOR_MAX_SLIPPAGE")
	setInt(&cfg.Executor.MaxConcurrent, "HEDGERUN_EXECUTOR_MAX_CONCURRENT")
	setBool(&cfg.Executor.UseLock, "HEDGERUN_EXECUTOR_USE_LOCK")
	setDuration(&cfg.Executor.LockTTL, "HEDGERUN_EXECUTOR_LOCK_TTL")

	// ── Settle ──
	setDuration(&cfg.Settle.Interval, "HEDGERUN_SETTLE_INTERVAL")

	// ── Paper ──
	setFloat64(&cfg.Paper.PolyBankroll, "HEDGERUN_PAPER_POLY_BANKROLL")
	setFloat64(&cfg.Paper.KalshiBankroll, "HEDGERUN_PAPER_KALSHI_BANKROLL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGERUN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGERUN_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HEDGERUN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "HEDGERUN_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "HEDGERUN_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGERUN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGERUN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGERUN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGERUN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGERUN_MODE")
	setStr(&cfg.LogLevel, "HEDGERUN_LOG_LEVEL")
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
