package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/notify"
	"github.com/mbeaudet/hedgerun/internal/risk"
)

// Alerter is the notification surface the coordinator needs. Satisfied by
// *notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Coordinator drives an opportunity from the feed through risk, claim,
// dispatch, and persistence. It is the only component that sees the whole
// pipeline; everything it composes is injected.
type Coordinator struct {
	feed     domain.OpportunityFeed
	poly     domain.VenueClient
	kalshi   domain.VenueClient
	gate     *risk.Gate
	dispatch *Dispatcher
	rollback *RollbackEngine
	ledger   domain.PositionLedger
	logger   *slog.Logger

	locks   domain.LockManager // optional cross-process guard
	alerter Alerter            // optional

	dedup         *dedup
	maxConcurrent int
	lockTTL       time.Duration
	saveRetries   int
}

// NewCoordinator wires the execution pipeline. Lock manager and alerter are
// optional; set them with SetLockManager and SetAlerter.
func NewCoordinator(
	feed domain.OpportunityFeed,
	poly, kalshi domain.VenueClient,
	gate *risk.Gate,
	dispatch *Dispatcher,
	rollback *RollbackEngine,
	ledger domain.PositionLedger,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		feed:          feed,
		poly:          poly,
		kalshi:        kalshi,
		gate:          gate,
		dispatch:      dispatch,
		rollback:      rollback,
		ledger:        ledger,
		logger:        logger.With(slog.String("component", "coordinator")),
		dedup:         newDedup(2 * time.Minute),
		maxConcurrent: 4,
		lockTTL:       30 * time.Second,
		saveRetries:   3,
	}
}

// SetLockManager enables the distributed lock around the claim/dispatch
// critical section. The ledger claim remains the correctness mechanism; the
// lock only cuts down wasted work across processes.
func (c *Coordinator) SetLockManager(locks domain.LockManager) {
	c.locks = locks
}

// SetAlerter enables operator notifications.
func (c *Coordinator) SetAlerter(a Alerter) {
	c.alerter = a
}

// SetMaxConcurrent bounds the number of opportunities in flight at once.
// Must be called before Run.
func (c *Coordinator) SetMaxConcurrent(n int) {
	if n > 0 {
		c.maxConcurrent = n
	}
}

// SetLockTTL overrides the TTL of the distributed lock. The TTL only matters
// when a process dies mid-execution; it must outlive the two leg timeouts.
func (c *Coordinator) SetLockTTL(ttl time.Duration) {
	if ttl > 0 {
		c.lockTTL = ttl
	}
}

// Run subscribes to the feed and processes opportunities until the context is
// cancelled or the feed closes. Each opportunity is handled in its own
// goroutine, bounded by the concurrency limit; in-flight executions run to
// completion during shutdown.
func (c *Coordinator) Run(ctx context.Context) error {
	ch, err := c.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("executor: subscribe to feed: %w", err)
	}

	c.logger.Info("coordinator started", slog.Int("max_concurrent", c.maxConcurrent))
	defer c.logger.Info("coordinator stopped")

	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup
	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()

		case opp, ok := <-ch:
			if !ok {
				wg.Wait()
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(opp domain.Opportunity) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := c.HandleOpportunity(ctx, opp); err != nil {
					c.logger.Error("opportunity handling failed",
						slog.String("opportunity_id", opp.ID),
						slog.String("error", err.Error()),
					)
				}
			}(opp)

		case <-cleanup.C:
			c.dedup.cleanup()
		}
	}
}

// HandleOpportunity runs one opportunity through the full pipeline. The
// returned error is always an infrastructure failure (store, lock, or balance
// fetch); risk rejections and unfilled orders resolve silently with logging
// and, where configured, notifications.
func (c *Coordinator) HandleOpportunity(ctx context.Context, opp domain.Opportunity) error {
	log := c.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("event", opp.EventKey()),
	)

	// Validate before the dedup records the id: a malformed delivery must not
	// suppress a corrected redelivery for the rest of the TTL window.
	if err := opp.Validate(); err != nil {
		log.Warn("malformed opportunity, skipping", slog.String("error", err.Error()))
		return nil
	}

	if c.dedup.isDuplicate(opp.ID) {
		log.Debug("duplicate opportunity, skipping")
		return nil
	}

	balances, err := c.fetchBalances(ctx)
	if err != nil {
		return fmt.Errorf("executor: fetch balances: %w", err)
	}

	decision, err := c.gate.Evaluate(ctx, opp, balances, opp.Liquidity)
	if err != nil {
		return err
	}
	if !decision.OK {
		log.Debug("risk rejected", slog.String("reason", decision.Reason))
		return nil
	}

	bet := c.gate.SizeBet(opp, balances, opp.Liquidity)
	if bet <= 0 {
		log.Debug("no sizeable bet within limits")
		return nil
	}

	key := opp.EventKey()

	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, "exec:"+key, c.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				log.Debug("event locked by another process, skipping")
				return nil
			}
			return fmt.Errorf("executor: acquire lock for %s: %w", key, err)
		}
		defer unlock()
	}

	claimed, err := c.ledger.Claim(ctx, key)
	if err != nil {
		return fmt.Errorf("executor: claim %s: %w", key, err)
	}
	if !claimed {
		log.Debug("event already claimed, skipping")
		return nil
	}

	log.Info("executing opportunity",
		slog.Float64("bet", bet),
		slog.Float64("roi", opp.ROIAfterFees),
		slog.Bool("live", opp.Live),
	)

	outcome := c.dispatch.Dispatch(ctx, opp, bet)

	switch outcome.Status() {
	case domain.ExecSuccess:
		return c.onSuccess(ctx, opp, outcome, log)
	case domain.ExecPartial:
		return c.onPartial(ctx, opp, outcome, log)
	default:
		return c.onFailed(ctx, opp, outcome, log)
	}
}

// fetchBalances queries both venues concurrently.
func (c *Coordinator) fetchBalances(ctx context.Context) (risk.Balances, error) {
	var balances risk.Balances
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances.Polymarket, err = c.poly.Balance(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		balances.Kalshi, err = c.kalshi.Balance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return risk.Balances{}, err
	}
	return balances, nil
}

func (c *Coordinator) onSuccess(ctx context.Context, opp domain.Opportunity, outcome domain.ExecutionOutcome, log *slog.Logger) error {
	pos := buildPosition(opp, outcome)

	if err := c.saveWithRetry(ctx, pos); err != nil {
		// Claim stays: the position exists on the venues even though the
		// record does not. An operator has to reconcile by hand.
		c.alert(ctx, notify.EventError, "Position save failed",
			notify.FormatSaveFailure(pos, err))
		return fmt.Errorf("executor: save position %s: %w", pos.ID, err)
	}

	c.gate.RecordTrade(0)
	log.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.Float64("invested", outcome.TotalInvested),
		slog.Float64("expected_profit", outcome.ExpectedProfit),
	)
	c.alert(ctx, notify.EventExecution, "Arbitrage executed",
		notify.FormatExecution(opp, outcome, c.refreshBalances(ctx)))
	return nil
}

// refreshBalances re-fetches both venue balances for the execution alert.
// Best effort: a fetch failure costs the balances line, never the alert.
func (c *Coordinator) refreshBalances(ctx context.Context) map[string]float64 {
	balances, err := c.fetchBalances(ctx)
	if err != nil {
		c.logger.Warn("post-execution balance refresh failed", slog.String("error", err.Error()))
		return nil
	}
	return map[string]float64{
		string(domain.VenuePolymarket): balances.Polymarket,
		string(domain.VenueKalshi):     balances.Kalshi,
	}
}

// onPartial unwinds the filled leg and persists a partial position. The claim
// stays in place either way: a partial needs a human, and freeing the key
// would let the same event re-execute on top of unresolved exposure.
func (c *Coordinator) onPartial(ctx context.Context, opp domain.Opportunity, outcome domain.ExecutionOutcome, log *slog.Logger) error {
	filled, _ := outcome.FilledLeg()
	rb, loss := c.rollback.Unwind(ctx, opp, filled)
	outcome.Rollback = &rb
	outcome.RollbackLoss = loss

	c.gate.RecordTrade(-loss)

	if rb.Success {
		log.Warn("partial execution rolled back", slog.Float64("loss", loss))
		c.alert(ctx, notify.EventExecution, "Partial fill rolled back",
			notify.FormatRollback(opp, filled, rb, loss))
	} else {
		log.Error("rollback failed, naked position",
			slog.String("venue", string(filled.Venue)),
			slog.Float64("contracts", filled.Contracts),
		)
		c.alert(ctx, notify.EventError, "ROLLBACK FAILED",
			notify.FormatNakedPosition(opp, filled, rb))
	}

	pos := buildPosition(opp, outcome)
	pos.Status = domain.PositionStatusPartial
	if err := c.saveWithRetry(ctx, pos); err != nil {
		c.alert(ctx, notify.EventError, "Position save failed",
			notify.FormatSaveFailure(pos, err))
		return fmt.Errorf("executor: save partial position %s: %w", pos.ID, err)
	}

	c.checkDrawdown(ctx)
	return nil
}

func (c *Coordinator) onFailed(ctx context.Context, opp domain.Opportunity, outcome domain.ExecutionOutcome, log *slog.Logger) error {
	if err := c.ledger.Release(ctx, opp.EventKey()); err != nil {
		log.Error("claim release failed", slog.String("error", err.Error()))
	}
	log.Warn("neither leg filled")
	c.alert(ctx, notify.EventExecution, "Execution failed",
		notify.FormatFailedExecution(opp, outcome))
	return nil
}

// checkDrawdown trips the kill switch when the daily loss limit is hit and
// sends the single notification for the flip.
func (c *Coordinator) checkDrawdown(ctx context.Context) {
	if c.gate.TripIfDrawdown() {
		c.alert(ctx, notify.EventKillSwitch, "Kill switch tripped",
			fmt.Sprintf("Daily P&L $%.2f hit the loss limit of $%.2f. Trading disabled until manually re-enabled.",
				c.gate.DailyPnL(), c.gate.Limits().MaxDailyLoss))
	}
}

// saveWithRetry persists a position with a few short back-off retries. The
// store is allowed a transient hiccup but not much more.
func (c *Coordinator) saveWithRetry(ctx context.Context, pos domain.Position) error {
	var err error
	backoff := 500 * time.Millisecond
	for attempt := 1; attempt <= c.saveRetries; attempt++ {
		if err = c.ledger.Save(ctx, pos); err == nil {
			return nil
		}
		c.logger.Warn("position save failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < c.saveRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return err
}

func (c *Coordinator) alert(ctx context.Context, event, title, message string) {
	if c.alerter == nil {
		return
	}
	if err := c.alerter.Notify(ctx, event, title, message); err != nil {
		c.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

// buildPosition converts an execution into the durable record. Callers flip
// the status for partials; a failed leg contributes zero fills.
func buildPosition(opp domain.Opportunity, outcome domain.ExecutionOutcome) domain.Position {
	pos := domain.Position{
		ID:         uuid.New().String(),
		EventKey:   opp.EventKey(),
		EventTitle: opp.EventTitle,
		TeamA:      opp.TeamA,
		TeamB:      opp.TeamB,

		PolySide:      opp.PolySide,
		PolyAmount:    outcome.PolyLeg.Dollars,
		PolyContracts: outcome.PolyLeg.Contracts,
		PolyAvgPrice:  outcome.PolyLeg.AvgPrice,
		PolyOrderID:   outcome.PolyLeg.OrderID,

		KalshiSide:      opp.KalshiSide,
		KalshiAmount:    outcome.KalshiLeg.Dollars,
		KalshiContracts: outcome.KalshiLeg.Contracts,
		KalshiAvgPrice:  outcome.KalshiLeg.AvgPrice,
		KalshiOrderID:   outcome.KalshiLeg.OrderID,

		ArbType:     opp.ArbType,
		ExpectedROI: opp.ROIAfterFees,

		Status:   domain.PositionStatusOpen,
		OpenedAt: outcome.ExecutedAt,
	}
	if outcome.Rollback != nil {
		pos.RolledBack = outcome.Rollback.Success
		pos.RollbackLoss = outcome.RollbackLoss
	}
	return pos
}
