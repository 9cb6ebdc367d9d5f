package risk

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// fakeLedger implements just enough of domain.PositionLedger for gate tests.
type fakeLedger struct {
	claimed map[string]bool
}

func (f *fakeLedger) Claim(_ context.Context, key string) (bool, error) {
	if f.claimed[key] {
		return false, nil
	}
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeLedger) Release(_ context.Context, key string) error {
	delete(f.claimed, key)
	return nil
}

func (f *fakeLedger) IsClaimed(_ context.Context, key string) (bool, error) {
	return f.claimed[key], nil
}

func (f *fakeLedger) Save(context.Context, domain.Position) error { return nil }
func (f *fakeLedger) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (f *fakeLedger) GetOpen(context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeLedger) Settle(context.Context, string, float64, string) error {
	return nil
}
func (f *fakeLedger) DailyStats(context.Context, time.Time) (domain.DailyStats, error) {
	return domain.DailyStats{}, nil
}

func testLimits() Limits {
	return Limits{
		MinBet:          1,
		MaxBet:          2,
		MinROI:          1,
		MaxROI:          50,
		MaxDailyTrades:  50,
		MaxDailyLoss:    5,
		MinVenueBalance: 1,
	}
}

func testOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-1",
		EventTitle:   "Lakers vs Celtics",
		TeamA:        "Lakers",
		TeamB:        "Celtics",
		BuyYesVenue:  domain.VenuePolymarket,
		BuyNoVenue:   domain.VenueKalshi,
		YesPrice:     0.51,
		NoPrice:      0.46,
		ROIAfterFees: 2.5,
		PolyTokenID:  "tok-1",
		PolySide:     "yes",
		KalshiTicker: "NBA-LAL-BOS",
		KalshiSide:   "no",
	}
}

func testLiquidity() *domain.LiquidityProfile {
	return &domain.LiquidityProfile{
		ContractsAtBest: 100,
		Contracts1Pct:   150,
		Contracts2Pct:   200,
		Contracts5Pct:   300,
		DollarsAtBest:   50,
		Dollars1Pct:     75,
		Dollars2Pct:     100,
		Bottleneck:      domain.VenueKalshi,
	}
}

func newTestGate(t *testing.T) (*Gate, *fakeLedger) {
	t.Helper()
	ledger := &fakeLedger{}
	return NewGate(testLimits(), ledger, slog.Default()), ledger
}

func TestEvaluate_PassAndSize(t *testing.T) {
	gate, _ := newTestGate(t)
	balances := Balances{Polymarket: 10, Kalshi: 10}

	dec, err := gate.Evaluate(context.Background(), testOpp(), balances, testLiquidity())
	require.NoError(t, err)
	assert.True(t, dec.OK)
	assert.Empty(t, dec.Reason)

	assert.Equal(t, 2.0, gate.SizeBet(testOpp(), balances, testLiquidity()))
}

func TestEvaluate_KillSwitchFirst(t *testing.T) {
	gate, _ := newTestGate(t)
	gate.Disable()

	// Everything else about this input is also invalid; the kill switch must
	// still be the reported reason because it is checked first.
	dec, err := gate.Evaluate(context.Background(), domain.Opportunity{ROIAfterFees: 9999},
		Balances{}, nil)
	require.NoError(t, err)
	assert.False(t, dec.OK)
	assert.Contains(t, dec.Reason, "kill switch")
}

func TestEvaluate_CheckOrdering(t *testing.T) {
	balances := Balances{Polymarket: 10, Kalshi: 10}

	cases := []struct {
		name    string
		mutate  func(*domain.Opportunity, *Balances, *domain.LiquidityProfile)
		setup   func(*Gate, *fakeLedger)
		wantSub string
	}{
		{
			name: "balance before roi",
			mutate: func(o *domain.Opportunity, b *Balances, _ *domain.LiquidityProfile) {
				b.Polymarket = 0.10
				o.ROIAfterFees = 0.1
			},
			wantSub: "polymarket balance too low",
		},
		{
			name: "roi too low",
			mutate: func(o *domain.Opportunity, _ *Balances, _ *domain.LiquidityProfile) {
				o.ROIAfterFees = 0.5
			},
			wantSub: "roi too low",
		},
		{
			name: "suspicious roi",
			mutate: func(o *domain.Opportunity, _ *Balances, _ *domain.LiquidityProfile) {
				o.ROIAfterFees = 80
			},
			wantSub: "suspicious roi",
		},
		{
			name: "daily trade limit",
			setup: func(g *Gate, _ *fakeLedger) {
				for i := 0; i < g.limits.MaxDailyTrades; i++ {
					g.RecordTrade(0)
				}
			},
			wantSub: "daily trade limit",
		},
		{
			name: "daily loss limit",
			setup: func(g *Gate, _ *fakeLedger) {
				g.OnSettlement(-5) // exactly -MaxDailyLoss
			},
			wantSub: "daily loss limit",
		},
		{
			name: "duplicate position",
			setup: func(_ *Gate, l *fakeLedger) {
				_, _ = l.Claim(context.Background(), "nba-lal-bos")
			},
			wantSub: "already have a position",
		},
		{
			name: "live needs high confidence",
			mutate: func(o *domain.Opportunity, _ *Balances, _ *domain.LiquidityProfile) {
				o.Live = true
				o.Confidence = domain.ConfidenceMedium
				o.Executable = true
			},
			wantSub: "high confidence",
		},
		{
			name: "live needs executable prices",
			mutate: func(o *domain.Opportunity, _ *Balances, _ *domain.LiquidityProfile) {
				o.Live = true
				o.Confidence = domain.ConfidenceHigh
				o.Executable = false
			},
			wantSub: "executable bid/ask",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate, ledger := newTestGate(t)
			opp := testOpp()
			b := balances
			liq := testLiquidity()
			if tc.mutate != nil {
				tc.mutate(&opp, &b, liq)
			}
			if tc.setup != nil {
				tc.setup(gate, ledger)
			}

			dec, err := gate.Evaluate(context.Background(), opp, b, liq)
			require.NoError(t, err)
			assert.False(t, dec.OK)
			assert.Contains(t, dec.Reason, tc.wantSub)
		})
	}
}

func TestEvaluate_Illiquid(t *testing.T) {
	gate, _ := newTestGate(t)
	balances := Balances{Polymarket: 10, Kalshi: 10}

	liq := testLiquidity()
	liq.DollarsAtBest = 0.50 // below MinBet

	dec, err := gate.Evaluate(context.Background(), testOpp(), balances, liq)
	require.NoError(t, err)
	assert.False(t, dec.OK)
	assert.Contains(t, dec.Reason, "liquidity")

	dec, err = gate.Evaluate(context.Background(), testOpp(), balances, nil)
	require.NoError(t, err)
	assert.False(t, dec.OK)
}

func TestSizeBet_Clamps(t *testing.T) {
	gate, _ := newTestGate(t)
	liq := testLiquidity()

	// Balance below MaxBet clamps the size.
	assert.Equal(t, 1.5, gate.SizeBet(testOpp(), Balances{Polymarket: 1.5, Kalshi: 9}, liq))

	// Liquidity at 1% slippage clamps the size.
	liq.Dollars1Pct = 1.25
	assert.Equal(t, 1.25, gate.SizeBet(testOpp(), Balances{Polymarket: 10, Kalshi: 10}, liq))

	// Minimum bet above a hard ceiling: no valid hedge, size zero.
	liq.Dollars1Pct = 0.40
	assert.Zero(t, gate.SizeBet(testOpp(), Balances{Polymarket: 10, Kalshi: 10}, liq))
	assert.Zero(t, gate.SizeBet(testOpp(), Balances{Polymarket: 0.2, Kalshi: 10}, testLiquidity()))
}

func TestKillSwitch_TripsAtExactLossLimit(t *testing.T) {
	gate, _ := newTestGate(t)

	gate.OnSettlement(-4.99)
	assert.False(t, gate.TripIfDrawdown())
	assert.True(t, gate.Enabled())

	gate.OnSettlement(-0.01) // exactly -MaxDailyLoss
	assert.True(t, gate.TripIfDrawdown())
	assert.False(t, gate.Enabled())

	// Only the flipping call reports true.
	assert.False(t, gate.TripIfDrawdown())

	dec, err := gate.Evaluate(context.Background(), testOpp(),
		Balances{Polymarket: 10, Kalshi: 10}, testLiquidity())
	require.NoError(t, err)
	assert.False(t, dec.OK)
	assert.Contains(t, dec.Reason, "kill switch")
}
