package notify

import (
	"fmt"
	"strings"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// Event types used to filter notifications per channel.
const (
	EventExecution  = "execution"
	EventSettlement = "settlement"
	EventKillSwitch = "kill_switch"
	EventSummary    = "daily_summary"
	EventError      = "error"
)

// FormatExecution renders a fully filled two-leg execution. balances carries
// the post-execution venue balances and may be nil when the refresh failed.
func FormatExecution(opp domain.Opportunity, outcome domain.ExecutionOutcome, balances map[string]float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", opp.EventTitle)
	fmt.Fprintf(&b, "Poly %s: %.2f @ $%.3f ($%.2f)\n",
		strings.ToUpper(opp.PolySide), outcome.PolyLeg.Contracts, outcome.PolyLeg.AvgPrice, outcome.PolyLeg.Dollars)
	fmt.Fprintf(&b, "Kalshi %s: %.2f @ $%.3f ($%.2f)\n",
		strings.ToUpper(opp.KalshiSide), outcome.KalshiLeg.Contracts, outcome.KalshiLeg.AvgPrice, outcome.KalshiLeg.Dollars)
	fmt.Fprintf(&b, "Invested $%.2f, guaranteed payout $%.2f, expected profit $%.2f (%.2f%% ROI)",
		outcome.TotalInvested, outcome.GuaranteedPayout, outcome.ExpectedProfit, opp.ROIAfterFees)
	if opp.Live {
		b.WriteString("\nLIVE event")
	}
	writeBalances(&b, balances)
	return b.String()
}

// FormatFailedExecution renders an execution where neither leg filled.
func FormatFailedExecution(opp domain.Opportunity, outcome domain.ExecutionOutcome) string {
	return fmt.Sprintf(
		"%s\nNeither leg filled, nothing at risk.\nPoly: %s\nKalshi: %s",
		opp.EventTitle, outcome.PolyLeg.Err, outcome.KalshiLeg.Err,
	)
}

func writeBalances(b *strings.Builder, balances map[string]float64) {
	if len(balances) == 0 {
		return
	}
	b.WriteString("\nBalances:")
	for _, venue := range []string{string(domain.VenuePolymarket), string(domain.VenueKalshi)} {
		if bal, ok := balances[venue]; ok {
			fmt.Fprintf(b, " %s $%.2f", venue, bal)
		}
	}
}

// FormatRollback renders a partial fill that was successfully unwound.
func FormatRollback(opp domain.Opportunity, filled, rollback domain.LegOutcome, loss float64) string {
	return fmt.Sprintf(
		"%s\nOnly the %s leg filled (%.2f contracts @ $%.3f).\nSold back %.2f @ $%.3f, recovered $%.2f.\nSpread loss: $%.2f",
		opp.EventTitle,
		filled.Venue, filled.Contracts, filled.AvgPrice,
		rollback.Contracts, rollback.AvgPrice, rollback.Dollars,
		loss,
	)
}

// FormatNakedPosition renders a failed rollback. This is the highest-severity
// message the system emits: an unhedged position is sitting on a venue.
func FormatNakedPosition(opp domain.Opportunity, filled, rollback domain.LegOutcome) string {
	return fmt.Sprintf(
		"%s\nOnly the %s leg filled (%.2f contracts @ $%.3f, $%.2f) and the rollback sell did NOT execute: %s\nManual intervention required.",
		opp.EventTitle,
		filled.Venue, filled.Contracts, filled.AvgPrice, filled.Dollars,
		rollback.Err,
	)
}

// FormatSaveFailure renders a persistence failure for an execution that did
// happen on the venues. The leg details are included so the position can be
// reconstructed by hand.
func FormatSaveFailure(pos domain.Position, err error) string {
	return fmt.Sprintf(
		"%s (%s)\nBoth legs filled but the position could not be saved: %v\nPoly %s: %.2f @ $%.3f (order %s)\nKalshi %s: %.2f @ $%.3f (order %s)",
		pos.EventTitle, pos.EventKey, err,
		pos.PolySide, pos.PolyContracts, pos.PolyAvgPrice, pos.PolyOrderID,
		pos.KalshiSide, pos.KalshiContracts, pos.KalshiAvgPrice, pos.KalshiOrderID,
	)
}

// FormatSettlement renders a settled position.
func FormatSettlement(pos domain.Position, pnl float64, winningSide string) string {
	result := "LOSS"
	if pnl >= 0 {
		result = "WIN"
	}
	return fmt.Sprintf(
		"%s\n%s settled %s. Realized P&L: $%+.2f (expected ROI was %.2f%%)",
		pos.EventTitle, strings.ToUpper(winningSide), result, pnl, pos.ExpectedROI,
	)
}

// FormatDailySummary renders the end-of-day stats digest.
func FormatDailySummary(stats domain.DailyStats, balances map[string]float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trades: %d (settled %d, partial %d)\n", stats.Trades, stats.Settled, stats.Partial)
	fmt.Fprintf(&b, "Realized P&L: $%+.2f", stats.PnL)
	writeBalances(&b, balances)
	return b.String()
}
