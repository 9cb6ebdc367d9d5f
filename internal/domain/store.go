package domain

import (
	"context"
	"time"
)

// PositionLedger is the single source of truth for executed positions and
// event claims. Claim must be linearizable across concurrent coordinator
// runs: of two racing Claim calls for the same key, exactly one returns true.
type PositionLedger interface {
	// Claim atomically reserves eventKey. It returns false when the key is
	// already claimed by an open or in-flight position.
	Claim(ctx context.Context, eventKey string) (bool, error)
	// Release removes a claim. Called on failed executions and after a
	// position settles.
	Release(ctx context.Context, eventKey string) error
	// IsClaimed reports whether eventKey currently has a claim.
	IsClaimed(ctx context.Context, eventKey string) (bool, error)

	// Save upserts a position by id.
	Save(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// GetOpen returns positions with status open or partial.
	GetOpen(ctx context.Context) ([]Position, error)
	// Settle transitions a position to settled with its realized P&L.
	Settle(ctx context.Context, id string, actualPnL float64, winningSide string) error

	// DailyStats aggregates positions opened on the given calendar day (UTC).
	DailyStats(ctx context.Context, day time.Time) (DailyStats, error)
}

// LockManager provides distributed locking. The coordinator uses it to
// serialize the claim/dispatch critical section across processes; the
// ledger's Claim remains the correctness mechanism.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter throttles outbound venue API calls across processes.
type RateLimiter interface {
	// Allow reports whether one more request for key fits under the limit
	// within the window, counting it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or ctx is cancelled.
	Wait(ctx context.Context, key string) error
}

// OpportunityFeed delivers opportunities from the upstream scanner.
type OpportunityFeed interface {
	// Subscribe returns a channel of opportunities. The channel is closed
	// when ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan Opportunity, error)
}
