package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mbeaudet/hedgerun/internal/cache/redis"
	"github.com/mbeaudet/hedgerun/internal/config"
	"github.com/mbeaudet/hedgerun/internal/crypto"
	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/notify"
	"github.com/mbeaudet/hedgerun/internal/platform/kalshi"
	"github.com/mbeaudet/hedgerun/internal/platform/paper"
	"github.com/mbeaudet/hedgerun/internal/platform/polymarket"
	"github.com/mbeaudet/hedgerun/internal/store/memory"
	"github.com/mbeaudet/hedgerun/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Ledger      domain.PositionLedger
	Feed        domain.OpportunityFeed
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager

	Poly    domain.VenueClient
	Kalshi  domain.VenueClient
	Results domain.ResultSource

	// Lifecycle is the Kalshi websocket stream nudging the settlement
	// monitor. Nil when kalshi.ws_url is empty.
	Lifecycle *kalshi.WSClient

	// Paper venue handles for settlement payouts. Only set in paper mode.
	PaperPoly   *paper.Client
	PaperKalshi *paper.Client

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis: opportunity feed, rate limiter, distributed lock ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Feed = redis.NewFeed(redisClient, cfg.Redis.FeedChannel, logger)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)

	live := strings.ToLower(cfg.Mode) == "live"

	// --- Position ledger ---
	if live {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Ledger = postgres.NewLedger(pgClient.Pool())
	} else {
		deps.Ledger = memory.NewLedger()
	}

	// --- Venue clients ---
	if live {
		polyClient := polymarket.NewClient(cfg.Polymarket.ClobHost, cfg.Polymarket.FunderAddress, &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		})
		polyClient.SetRateLimiter(deps.RateLimiter)
		deps.Poly = polyClient

		kalshiClient := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKeyID)
		keyBytes, err := os.ReadFile(cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: read kalshi RSA key: %w", err)
		}
		if err := kalshiClient.SetRSAPrivateKey(keyBytes); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kalshi RSA key: %w", err)
		}
		kalshiClient.SetRateLimiter(deps.RateLimiter)
		deps.Kalshi = kalshiClient
		deps.Results = kalshiClient
	} else {
		deps.PaperPoly = paper.NewClient(domain.VenuePolymarket, cfg.Paper.PolyBankroll)
		deps.PaperKalshi = paper.NewClient(domain.VenueKalshi, cfg.Paper.KalshiBankroll)
		deps.Poly = deps.PaperPoly
		deps.Kalshi = deps.PaperKalshi

		// Settlement results come from the public Kalshi market endpoint;
		// no credentials needed for reads.
		deps.Results = kalshi.NewClient(cfg.Kalshi.BaseURL, "")
	}

	// --- Kalshi lifecycle stream ---
	if cfg.Kalshi.WsURL != "" {
		deps.Lifecycle = kalshi.NewWSClient(cfg.Kalshi.WsURL)
		closers = append(closers, func() { _ = deps.Lifecycle.Close() })
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
