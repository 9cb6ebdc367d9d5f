// Package settle watches open positions until their market resolves, realizes
// the P&L of the hedged pair, and feeds the result back into the ledger and
// the risk state.
package settle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/notify"
	"github.com/mbeaudet/hedgerun/internal/risk"
)

// Alerter is the notification surface the monitor needs. Satisfied by
// *notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Monitor polls open positions against the settlement result source. A
// websocket lifecycle stream can nudge it to re-check a specific market ahead
// of the regular interval.
type Monitor struct {
	ledger  domain.PositionLedger
	results domain.ResultSource
	gate    *risk.Gate
	logger  *slog.Logger

	poly    domain.VenueClient // optional, for summary balances
	kalshi  domain.VenueClient // optional
	alerter Alerter            // optional

	// payout, when set, is invoked with the winning leg's venue and its $1
	// per-contract payout. Paper mode uses it to credit the simulated
	// bankrolls; real venues settle server-side.
	payout func(venue domain.Venue, amount float64)

	interval time.Duration
	nudges   chan string

	lastSummaryDay time.Time
}

// NewMonitor creates a Monitor polling at the given interval.
func NewMonitor(
	ledger domain.PositionLedger,
	results domain.ResultSource,
	gate *risk.Gate,
	interval time.Duration,
	logger *slog.Logger,
) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		ledger:         ledger,
		results:        results,
		gate:           gate,
		logger:         logger.With(slog.String("component", "settle_monitor")),
		interval:       interval,
		nudges:         make(chan string, 64),
		lastSummaryDay: utcDay(time.Now()),
	}
}

// SetAlerter enables settlement and daily-summary notifications.
func (m *Monitor) SetAlerter(a Alerter) {
	m.alerter = a
}

// SetPayout registers a callback receiving each settled position's winning
// payout.
func (m *Monitor) SetPayout(fn func(venue domain.Venue, amount float64)) {
	m.payout = fn
}

// SetBalanceSources lets the daily summary include venue balances.
func (m *Monitor) SetBalanceSources(poly, kalshi domain.VenueClient) {
	m.poly = poly
	m.kalshi = kalshi
}

// Nudge asks the monitor to check the given market ticker soon. Non-blocking;
// a full queue drops the nudge because the regular sweep will catch up.
func (m *Monitor) Nudge(ticker string) {
	select {
	case m.nudges <- strings.ToLower(ticker):
	default:
	}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("settlement monitor started", slog.Duration("interval", m.interval))
	defer m.logger.Info("settlement monitor stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx, "")
			m.maybeDailySummary(ctx)
		case key := <-m.nudges:
			m.sweep(ctx, key)
		}
	}
}

// sweep checks open positions for settlement. A non-empty onlyKey restricts
// the pass to positions on that event.
func (m *Monitor) sweep(ctx context.Context, onlyKey string) {
	positions, err := m.ledger.GetOpen(ctx)
	if err != nil {
		m.logger.Error("load open positions failed", slog.String("error", err.Error()))
		return
	}

	for _, pos := range positions {
		if onlyKey != "" && pos.EventKey != onlyKey {
			continue
		}
		// Partial positions need a human; they never settle automatically.
		if pos.Status != domain.PositionStatusOpen {
			continue
		}
		if err := m.settleOne(ctx, pos); err != nil {
			m.logger.Error("settlement failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// settleOne queries the result source and, when the market is determined,
// realizes the position.
func (m *Monitor) settleOne(ctx context.Context, pos domain.Position) error {
	// The event key is the lowercased Kalshi ticker.
	result, err := m.results.Result(ctx, strings.ToUpper(pos.EventKey))
	if err != nil {
		return fmt.Errorf("settle: result for %s: %w", pos.EventKey, err)
	}
	if result != "yes" && result != "no" {
		return nil // still undetermined
	}

	pnl := realizedPnL(pos, result)

	if err := m.ledger.Settle(ctx, pos.ID, pnl, result); err != nil {
		return fmt.Errorf("settle: persist %s: %w", pos.ID, err)
	}
	if err := m.ledger.Release(ctx, pos.EventKey); err != nil {
		m.logger.Error("claim release failed",
			slog.String("event", pos.EventKey),
			slog.String("error", err.Error()),
		)
	}

	if m.payout != nil {
		if pos.PolySide == result {
			m.payout(domain.VenuePolymarket, pos.PolyContracts)
		}
		if pos.KalshiSide == result {
			m.payout(domain.VenueKalshi, pos.KalshiContracts)
		}
	}

	m.gate.OnSettlement(pnl)

	m.logger.Info("position settled",
		slog.String("position_id", pos.ID),
		slog.String("event", pos.EventKey),
		slog.String("result", result),
		slog.Float64("pnl", pnl),
	)
	m.alert(ctx, notify.EventSettlement, "Position settled", notify.FormatSettlement(pos, pnl, result))

	if m.gate.TripIfDrawdown() {
		m.alert(ctx, notify.EventKillSwitch, "Kill switch tripped",
			fmt.Sprintf("Daily P&L $%.2f hit the loss limit of $%.2f after settlement. Trading disabled.",
				m.gate.DailyPnL(), m.gate.Limits().MaxDailyLoss))
	}
	return nil
}

// realizedPnL computes the P&L of the hedged pair given the winning side.
// Exactly one leg holds the winning side; its contracts pay $1 each and the
// other leg expires worthless.
func realizedPnL(pos domain.Position, result string) float64 {
	invested := pos.PolyAmount + pos.KalshiAmount

	var payout float64
	if pos.PolySide == result {
		payout += pos.PolyContracts
	}
	if pos.KalshiSide == result {
		payout += pos.KalshiContracts
	}
	return payout - invested
}

// maybeDailySummary emits the previous day's digest once per UTC day change.
func (m *Monitor) maybeDailySummary(ctx context.Context) {
	today := utcDay(time.Now())
	if today.Equal(m.lastSummaryDay) {
		return
	}
	yesterday := m.lastSummaryDay
	m.lastSummaryDay = today

	stats, err := m.ledger.DailyStats(ctx, yesterday)
	if err != nil {
		m.logger.Error("daily stats failed", slog.String("error", err.Error()))
		return
	}

	balances := make(map[string]float64)
	if m.poly != nil {
		if bal, err := m.poly.Balance(ctx); err == nil {
			balances[string(domain.VenuePolymarket)] = bal
		}
	}
	if m.kalshi != nil {
		if bal, err := m.kalshi.Balance(ctx); err == nil {
			balances[string(domain.VenueKalshi)] = bal
		}
	}

	title := fmt.Sprintf("Daily summary %s", yesterday.Format("2006-01-02"))
	m.alert(ctx, notify.EventSummary, title, notify.FormatDailySummary(stats, balances))
}

func (m *Monitor) alert(ctx context.Context, event, title, message string) {
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Notify(ctx, event, title, message); err != nil {
		m.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
