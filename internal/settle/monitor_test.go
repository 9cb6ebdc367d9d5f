package settle

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/risk"
	"github.com/mbeaudet/hedgerun/internal/store/memory"
)

type fakeResults struct {
	mu      sync.Mutex
	results map[string]string // upper-case ticker -> "yes"/"no"/""
}

func (f *fakeResults) Result(_ context.Context, ticker string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[ticker], nil
}

type recordAlerter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordAlerter) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordAlerter) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func openPosition(id string) domain.Position {
	return domain.Position{
		ID:         id,
		EventKey:   "nba-lal-bos",
		EventTitle: "Lakers vs Celtics",

		PolySide:      "yes",
		PolyAmount:    1.03,
		PolyContracts: 2.02,
		PolyAvgPrice:  0.51,

		KalshiSide:      "no",
		KalshiAmount:    0.96,
		KalshiContracts: 2,
		KalshiAvgPrice:  0.48,

		Status:   domain.PositionStatusOpen,
		OpenedAt: time.Now().UTC(),
	}
}

func testMonitor(t *testing.T) (*Monitor, *memory.Ledger, *fakeResults, *risk.Gate, *recordAlerter) {
	t.Helper()
	ledger := memory.NewLedger()
	results := &fakeResults{results: map[string]string{}}
	gate := risk.NewGate(risk.Limits{MaxDailyLoss: 5}, ledger, slog.Default())
	alerter := &recordAlerter{}
	m := NewMonitor(ledger, results, gate, time.Minute, slog.Default())
	m.SetAlerter(alerter)
	return m, ledger, results, gate, alerter
}

func TestRealizedPnL(t *testing.T) {
	pos := openPosition("p")

	// YES wins: the Polymarket leg pays out its contracts.
	assert.InDelta(t, 2.02-1.99, realizedPnL(pos, "yes"), 1e-9)
	// NO wins: the Kalshi leg pays out.
	assert.InDelta(t, 2.00-1.99, realizedPnL(pos, "no"), 1e-9)
}

func TestSweep_SettlesDeterminedPosition(t *testing.T) {
	m, ledger, results, gate, alerter := testMonitor(t)
	ctx := context.Background()

	pos := openPosition("pos-1")
	_, err := ledger.Claim(ctx, pos.EventKey)
	require.NoError(t, err)
	require.NoError(t, ledger.Save(ctx, pos))

	// Undetermined: nothing happens.
	m.sweep(ctx, "")
	open, err := ledger.GetOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	results.results["NBA-LAL-BOS"] = "no"
	m.sweep(ctx, "")

	got, err := ledger.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusSettled, got.Status)
	require.NotNil(t, got.ActualPnL)
	assert.InDelta(t, 0.01, *got.ActualPnL, 1e-9)

	// Claim released so the event can be traded again.
	claimed, err := ledger.IsClaimed(ctx, pos.EventKey)
	require.NoError(t, err)
	assert.False(t, claimed)

	// P&L folded into the daily risk state.
	assert.InDelta(t, 0.01, gate.DailyPnL(), 1e-9)
	assert.Contains(t, alerter.seen(), "settlement")
}

func TestSweep_SkipsPartialPositions(t *testing.T) {
	m, ledger, results, _, _ := testMonitor(t)
	ctx := context.Background()

	pos := openPosition("pos-partial")
	pos.Status = domain.PositionStatusPartial
	require.NoError(t, ledger.Save(ctx, pos))
	results.results["NBA-LAL-BOS"] = "yes"

	m.sweep(ctx, "")

	got, err := ledger.GetByID(ctx, "pos-partial")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusPartial, got.Status, "partial positions need a human")
}

func TestSweep_NudgeRestrictsToEvent(t *testing.T) {
	m, ledger, results, _, _ := testMonitor(t)
	ctx := context.Background()

	a := openPosition("pos-a")
	b := openPosition("pos-b")
	b.EventKey = "nba-gsw-den"
	require.NoError(t, ledger.Save(ctx, a))
	require.NoError(t, ledger.Save(ctx, b))
	results.results["NBA-LAL-BOS"] = "yes"
	results.results["NBA-GSW-DEN"] = "yes"

	m.sweep(ctx, "nba-gsw-den")

	gotA, _ := ledger.GetByID(ctx, "pos-a")
	gotB, _ := ledger.GetByID(ctx, "pos-b")
	assert.Equal(t, domain.PositionStatusOpen, gotA.Status)
	assert.Equal(t, domain.PositionStatusSettled, gotB.Status)
}

func TestSettlement_LossTripsKillSwitch(t *testing.T) {
	m, ledger, results, gate, alerter := testMonitor(t)
	ctx := context.Background()

	// A partial-style loss scenario encoded as a settled pair: both sides
	// bought the losing outcome.
	pos := openPosition("pos-loss")
	pos.PolySide = "yes"
	pos.KalshiSide = "yes"
	pos.PolyAmount = 3
	pos.KalshiAmount = 3
	require.NoError(t, ledger.Save(ctx, pos))
	results.results["NBA-LAL-BOS"] = "no"

	m.sweep(ctx, "")

	assert.False(t, gate.Enabled())
	assert.Contains(t, alerter.seen(), "kill_switch")
}

func TestSweep_PayoutGoesToWinningVenue(t *testing.T) {
	m, ledger, results, _, _ := testMonitor(t)
	ctx := context.Background()

	var venue domain.Venue
	var amount float64
	m.SetPayout(func(v domain.Venue, a float64) { venue, amount = v, a })

	pos := openPosition("pos-pay")
	require.NoError(t, ledger.Save(ctx, pos))
	results.results["NBA-LAL-BOS"] = "no"

	m.sweep(ctx, "")

	assert.Equal(t, domain.VenueKalshi, venue)
	assert.InDelta(t, 2.0, amount, 1e-9)
}

func TestNudge_NonBlockingWhenFull(t *testing.T) {
	m, _, _, _, _ := testMonitor(t)
	for i := 0; i < 1000; i++ {
		m.Nudge("NBA-LAL-BOS") // must never block
	}
}
