package domain

import "time"

// ExecStatus is the aggregate outcome of a two-leg execution.
type ExecStatus string

const (
	ExecSuccess ExecStatus = "success" // both legs filled
	ExecPartial ExecStatus = "partial" // exactly one leg filled
	ExecFailed  ExecStatus = "failed"  // neither leg filled
)

// LegOutcome records what actually happened on one venue. Contracts, AvgPrice
// and Dollars always reflect actual fills reported by the venue, never the
// requested amounts.
type LegOutcome struct {
	Venue     Venue
	Success   bool
	OrderID   string
	Contracts float64
	AvgPrice  float64
	Dollars   float64
	Err       string // description when Success is false
}

// ExecutionOutcome is the pair of leg outcomes plus rollback bookkeeping.
type ExecutionOutcome struct {
	PolyLeg    LegOutcome
	KalshiLeg  LegOutcome
	ExecutedAt time.Time

	// Rollback is set when a partial fill was compensated (or a compensation
	// was attempted and itself failed). RollbackLoss is the spread loss
	// realized by a successful rollback.
	Rollback     *LegOutcome
	RollbackLoss float64

	// Payout accounting, populated when both legs filled.
	TotalInvested    float64
	GuaranteedPayout float64
	ExpectedProfit   float64
}

// Status derives the aggregate status from the two leg booleans. The mapping
// is total: every combination yields exactly one status.
func (e ExecutionOutcome) Status() ExecStatus {
	switch {
	case e.PolyLeg.Success && e.KalshiLeg.Success:
		return ExecSuccess
	case e.PolyLeg.Success || e.KalshiLeg.Success:
		return ExecPartial
	default:
		return ExecFailed
	}
}

// FilledLeg returns the successful leg of a partial execution. The second
// return is false when the outcome is not partial.
func (e ExecutionOutcome) FilledLeg() (LegOutcome, bool) {
	if e.Status() != ExecPartial {
		return LegOutcome{}, false
	}
	if e.PolyLeg.Success {
		return e.PolyLeg, true
	}
	return e.KalshiLeg, true
}
