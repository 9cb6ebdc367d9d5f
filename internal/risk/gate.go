// Package risk holds the stateful pre-trade gate: limit checks, bet sizing,
// and the process-wide risk counters (daily trades, daily P&L, kill switch).
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// Limits are the static risk parameters. All dollar figures are USD.
type Limits struct {
	MinBet          float64
	MaxBet          float64
	MinROI          float64 // percent
	MaxROI          float64 // percent; above this the data is suspect
	MaxDailyTrades  int
	MaxDailyLoss    float64
	MinVenueBalance float64
}

// Balances is a snapshot of available cash on both venues.
type Balances struct {
	Polymarket float64
	Kalshi     float64
}

// Min returns the smaller of the two balances.
func (b Balances) Min() float64 {
	if b.Polymarket < b.Kalshi {
		return b.Polymarket
	}
	return b.Kalshi
}

// Gate validates opportunities against the limits and tracks daily state.
// All mutable state lives behind one mutex; counters reset when the UTC
// calendar day changes.
type Gate struct {
	limits Limits
	ledger domain.PositionLedger
	logger *slog.Logger

	mu          sync.Mutex
	enabled     bool
	dailyTrades int
	dailyPnL    float64
	day         time.Time // UTC midnight of the day the counters apply to
}

// NewGate creates a Gate with the kill switch enabled (trading allowed).
func NewGate(limits Limits, ledger domain.PositionLedger, logger *slog.Logger) *Gate {
	return &Gate{
		limits:  limits,
		ledger:  ledger,
		logger:  logger.With(slog.String("component", "risk_gate")),
		enabled: true,
		day:     utcDay(time.Now()),
	}
}

// Evaluate runs the pre-trade checks in a fixed order and returns the first
// failure. The ordering is part of the contract: callers and tests may rely
// on which reason surfaces first.
func (g *Gate) Evaluate(ctx context.Context, opp domain.Opportunity, balances Balances, liq *domain.LiquidityProfile) (domain.RiskDecision, error) {
	g.mu.Lock()
	g.resetDailyLocked()
	enabled := g.enabled
	trades := g.dailyTrades
	pnl := g.dailyPnL
	g.mu.Unlock()

	// 1. Kill switch.
	if !enabled {
		return domain.Reject("kill switch is off, trading disabled"), nil
	}

	// 2. Venue balances.
	if balances.Polymarket < g.limits.MinVenueBalance {
		return domain.Reject(fmt.Sprintf("polymarket balance too low: $%.2f", balances.Polymarket)), nil
	}
	if balances.Kalshi < g.limits.MinVenueBalance {
		return domain.Reject(fmt.Sprintf("kalshi balance too low: $%.2f", balances.Kalshi)), nil
	}

	// 3. ROI band. Above MaxROI smells like corrupt or mismatched data, not
	// free money.
	if opp.ROIAfterFees < g.limits.MinROI {
		return domain.Reject(fmt.Sprintf("roi too low: %.2f%% < %.2f%%", opp.ROIAfterFees, g.limits.MinROI)), nil
	}
	if opp.ROIAfterFees > g.limits.MaxROI {
		return domain.Reject(fmt.Sprintf("suspicious roi: %.2f%% > %.2f%%", opp.ROIAfterFees, g.limits.MaxROI)), nil
	}

	// 4. Daily trade count.
	if trades >= g.limits.MaxDailyTrades {
		return domain.Reject(fmt.Sprintf("daily trade limit reached: %d/%d", trades, g.limits.MaxDailyTrades)), nil
	}

	// 5. Daily loss.
	if pnl <= -g.limits.MaxDailyLoss {
		return domain.Reject(fmt.Sprintf("daily loss limit reached: $%.2f", math.Abs(pnl))), nil
	}

	// 6. Duplicate position. The ledger, not an in-memory cache, is the
	// source of truth for open and in-flight event keys.
	claimed, err := g.ledger.IsClaimed(ctx, opp.EventKey())
	if err != nil {
		return domain.RiskDecision{}, fmt.Errorf("risk: duplicate check for %s: %w", opp.EventKey(), err)
	}
	if claimed {
		return domain.Reject(fmt.Sprintf("already have a position on %s (%s)", opp.EventTitle, opp.EventKey())), nil
	}

	// 7. Live events only execute on top-tier matches with executable quotes.
	if opp.Live {
		if opp.Confidence != domain.ConfidenceHigh {
			return domain.Reject(fmt.Sprintf("live event requires high confidence (got %s)", opp.Confidence)), nil
		}
		if !opp.Executable {
			return domain.Reject("live event requires executable bid/ask prices"), nil
		}
	}

	// 8. Liquidity floor at zero slippage.
	if liq == nil || liq.DollarsAtBest < g.limits.MinBet {
		return domain.Reject("insufficient liquidity at best prices"), nil
	}

	return domain.Approve(), nil
}

// SizeBet computes the dollar amount to risk. It starts from the configured
// maximum and clamps down to the smaller venue balance, then to the 1%
// slippage liquidity figure, then up to the minimum bet. If the minimum bet
// pushes the size back over a hard ceiling the hedge cannot be sized validly
// and zero is returned: the coordinator abandons the attempt instead of
// undersizing into an unbalanced pair.
func (g *Gate) SizeBet(opp domain.Opportunity, balances Balances, liq *domain.LiquidityProfile) float64 {
	bet := g.limits.MaxBet

	maxByBalance := balances.Min()
	if bet > maxByBalance {
		bet = maxByBalance
	}

	liqCap := math.Inf(1)
	if liq != nil && liq.Dollars1Pct > 0 {
		liqCap = liq.Dollars1Pct
	}
	if bet > liqCap {
		bet = liqCap
	}

	if bet < g.limits.MinBet {
		bet = g.limits.MinBet
	}

	if bet > maxByBalance || bet > liqCap {
		return 0
	}

	return math.Round(bet*100) / 100
}

// RecordTrade increments the daily trade counter and folds any immediately
// realized P&L (rollback spread loss) into the daily accumulator.
func (g *Gate) RecordTrade(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyLocked()
	g.dailyTrades++
	g.dailyPnL += pnl
	g.logger.Info("trade recorded",
		slog.Int("daily_trades", g.dailyTrades),
		slog.Float64("daily_pnl", g.dailyPnL),
	)
}

// OnSettlement folds a settled position's realized P&L into the daily
// accumulator.
func (g *Gate) OnSettlement(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyLocked()
	g.dailyPnL += pnl
}

// TripIfDrawdown disables trading when the daily P&L has reached the daily
// loss limit. It returns true only on the call that flips the switch, so the
// caller can emit a single kill-switch notification.
func (g *Gate) TripIfDrawdown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyLocked()
	if !g.enabled || g.dailyPnL > -g.limits.MaxDailyLoss {
		return false
	}
	g.enabled = false
	g.logger.Warn("kill switch tripped",
		slog.Float64("daily_pnl", g.dailyPnL),
		slog.Float64("max_daily_loss", g.limits.MaxDailyLoss),
	)
	return true
}

// Enabled reports whether trading is allowed.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Enable re-arms the kill switch (manual operator action).
func (g *Gate) Enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = true
}

// Disable halts all new trade execution.
func (g *Gate) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = false
}

// DailyTrades returns the trade count for the current day.
func (g *Gate) DailyTrades() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyLocked()
	return g.dailyTrades
}

// DailyPnL returns the accumulated P&L for the current day.
func (g *Gate) DailyPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDailyLocked()
	return g.dailyPnL
}

// Limits returns the configured static limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

// resetDailyLocked zeroes the counters when the UTC day has rolled over.
// Callers must hold g.mu.
func (g *Gate) resetDailyLocked() {
	today := utcDay(time.Now())
	if !today.Equal(g.day) {
		g.dailyTrades = 0
		g.dailyPnL = 0
		g.day = today
		g.logger.Info("daily risk counters reset")
	}
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
