// Package config defines the top-level configuration for hedgerun and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGERUN_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Risk       RiskConfig       `toml:"risk"`
	Executor   ExecutorConfig   `toml:"executor"`
	Settle     SettleConfig     `toml:"settle"`
	Paper      PaperConfig      `toml:"paper"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the CLOB endpoint and L2 API credentials.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	FunderAddress string `toml:"funder_address"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// KalshiConfig holds Kalshi exchange API credentials and endpoints.
type KalshiConfig struct {
	ApiKeyID          string `toml:"api_key_id"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	WsURL             string `toml:"ws_url"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger.
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
	Addr        string `toml:"addr"`
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	PoolSize    int    `toml:"pool_size"`
	MaxRetries  int    `toml:"max_retries"`
	TLSEnabled  bool   `toml:"tls_enabled"`
	FeedChannel string `toml:"feed_channel"`
}

// RiskConfig holds the trading limits enforced by the risk gate.
type RiskConfig struct {
	MinBet          float64 `toml:"min_bet"`
	MaxBet          float64 `toml:"max_bet"`
	MinROI          float64 `toml:"min_roi"`
	MaxROI          float64 `toml:"max_roi"`
	MaxDailyTrades  int     `toml:"max_daily_trades"`
	MaxDailyLoss    float64 `toml:"max_daily_loss"`
	MinVenueBalance float64 `toml:"min_venue_balance"`
}

// ExecutorConfig holds execution-path tuning knobs.
type ExecutorConfig struct {
	LegTimeout      duration `toml:"leg_timeout"`
	RollbackTimeout duration `toml:"rollback_timeout"`
	MaxSlippage     float64  `toml:"max_slippage"`
	MaxConcurrent   int      `toml:"max_concurrent"`
	UseLock         bool     `toml:"use_lock"`
	LockTTL         duration `toml:"lock_ttl"`
}

// SettleConfig holds settlement-monitor parameters.
type SettleConfig struct {
	Interval duration `toml:"interval"`
}

// PaperConfig holds the simulated bankrolls for paper mode.
type PaperConfig struct {
	PolyBankroll   float64 `toml:"poly_bankroll"`
	KalshiBankroll float64 `toml:"kalshi_bankroll"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost: "https://clob.polymarket.com",
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hedgerun",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			TLSEnabled:  false,
			FeedChannel: "hedgerun:opportunities",
		},
		Risk: RiskConfig{
			MinBet:          1.0,
			MaxBet:          2.0,
			MinROI:          0.5,
			MaxROI:          20.0,
			MaxDailyTrades:  50,
			MaxDailyLoss:    5.0,
			MinVenueBalance: 1.0,
		},
		Executor: ExecutorConfig{
			LegTimeout:      duration{15 * time.Second},
			RollbackTimeout: duration{10 * time.Second},
			MaxSlippage:     0.05,
			MaxConcurrent:   4,
			UseLock:         false,
			LockTTL:         duration{30 * time.Second},
		},
		Settle: SettleConfig{
			Interval: duration{time.Minute},
		},
		Paper: PaperConfig{
			PolyBankroll:   100.0,
			KalshiBankroll: 100.0,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			RateLimit:       0,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"execution", "settlement", "kill_switch", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":  true,
	"paper": true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	live := strings.ToLower(c.Mode) == "live"

	// Venue credentials are only required when we actually trade against
	// the real venues.
	if live {
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host must not be empty")
		}
		if c.Polymarket.FunderAddress == "" {
			errs = append(errs, "polymarket: funder_address is required for live mode")
		}
		pk := c.Polymarket.ApiKey != ""
		ps := c.Polymarket.ApiSecret != ""
		pp := c.Polymarket.ApiPassphrase != ""
		if !(pk && ps && pp) {
			errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set for live mode")
		}

		if c.Kalshi.ApiKeyID == "" {
			errs = append(errs, "kalshi: api_key_id is required for live mode")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for live mode")
		}
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty")
		}

		// The durable ledger backs live mode.
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

	// Redis carries the opportunity feed in both modes.
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.FeedChannel == "" {
		errs = append(errs, "redis: feed_channel must not be empty")
	}

	// Risk limits
	if c.Risk.MinBet <= 0 {
		errs = append(errs, "risk: min_bet must be > 0")
	}
	if c.Risk.MaxBet < c.Risk.MinBet {
		errs = append(errs, "risk: max_bet must be >= min_bet")
	}
	if c.Risk.MaxROI <= c.Risk.MinROI {
		errs = append(errs, "risk: max_roi must be > min_roi")
	}
	if c.Risk.MaxDailyTrades < 1 {
		errs = append(errs, "risk: max_daily_trades must be >= 1")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		errs = append(errs, "risk: max_daily_loss must be > 0")
	}

	// Executor
	if c.Executor.MaxSlippage < 0 || c.Executor.MaxSlippage >= 1 {
		errs = append(errs, fmt.Sprintf("executor: max_slippage must be in [0, 1), got %g", c.Executor.MaxSlippage))
	}
	if c.Executor.MaxConcurrent < 1 {
		errs = append(errs, "executor: max_concurrent must be >= 1")
	}

	// Paper bankrolls
	if strings.ToLower(c.Mode) == "paper" {
		if c.Paper.PolyBankroll <= 0 || c.Paper.KalshiBankroll <= 0 {
			errs = append(errs, "paper: bankrolls must be > 0 for paper mode")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
