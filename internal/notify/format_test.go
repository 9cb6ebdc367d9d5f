package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

func execOutcome() domain.ExecutionOutcome {
	return domain.ExecutionOutcome{
		PolyLeg:          domain.LegOutcome{Venue: domain.VenuePolymarket, Success: true, Contracts: 2.02, AvgPrice: 0.51, Dollars: 1.03},
		KalshiLeg:        domain.LegOutcome{Venue: domain.VenueKalshi, Success: true, Contracts: 2, AvgPrice: 0.48, Dollars: 0.96},
		TotalInvested:    1.99,
		GuaranteedPayout: 2.0,
		ExpectedProfit:   0.01,
	}
}

func TestFormatExecution_IncludesRefreshedBalances(t *testing.T) {
	opp := domain.Opportunity{EventTitle: "Lakers vs Celtics", PolySide: "yes", KalshiSide: "no", ROIAfterFees: 1.02}

	msg := FormatExecution(opp, execOutcome(), map[string]float64{
		"polymarket": 8.97,
		"kalshi":     9.04,
	})

	assert.Contains(t, msg, "Balances: polymarket $8.97 kalshi $9.04")
}

func TestFormatExecution_NoBalancesLineWhenRefreshFailed(t *testing.T) {
	opp := domain.Opportunity{EventTitle: "Lakers vs Celtics", PolySide: "yes", KalshiSide: "no"}

	msg := FormatExecution(opp, execOutcome(), nil)

	assert.NotContains(t, msg, "Balances:")
}

func TestFormatFailedExecution_ReportsBothLegErrors(t *testing.T) {
	opp := domain.Opportunity{EventTitle: "Lakers vs Celtics"}
	outcome := domain.ExecutionOutcome{
		PolyLeg:   domain.LegOutcome{Venue: domain.VenuePolymarket, Err: "order did not fill"},
		KalshiLeg: domain.LegOutcome{Venue: domain.VenueKalshi, Err: "insufficient balance"},
	}

	msg := FormatFailedExecution(opp, outcome)

	assert.Contains(t, msg, "order did not fill")
	assert.Contains(t, msg, "insufficient balance")
	assert.Contains(t, msg, "nothing at risk")
}
