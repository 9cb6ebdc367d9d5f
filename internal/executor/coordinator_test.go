package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/notify"
	"github.com/mbeaudet/hedgerun/internal/risk"
)

type memLedger struct {
	mu       sync.Mutex
	claims   map[string]bool
	saved    []domain.Position
	saveErr  error
	released []string
}

func newMemLedger() *memLedger {
	return &memLedger{claims: make(map[string]bool)}
}

func (m *memLedger) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[key] {
		return false, nil
	}
	m.claims[key] = true
	return true, nil
}

func (m *memLedger) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	m.released = append(m.released, key)
	return nil
}

func (m *memLedger) IsClaimed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims[key], nil
}

func (m *memLedger) Save(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, pos)
	return nil
}

func (m *memLedger) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (m *memLedger) GetOpen(context.Context) ([]domain.Position, error) { return nil, nil }
func (m *memLedger) Settle(context.Context, string, float64, string) error {
	return nil
}
func (m *memLedger) DailyStats(context.Context, time.Time) (domain.DailyStats, error) {
	return domain.DailyStats{}, nil
}

type capturedAlert struct {
	event, title, message string
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []capturedAlert
}

func (f *fakeAlerter) Notify(_ context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, capturedAlert{event: event, title: title, message: message})
	return nil
}

func (f *fakeAlerter) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.alerts))
	for i, a := range f.alerts {
		out[i] = a.event
	}
	return out
}

func (f *fakeAlerter) lastMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.alerts) == 0 {
		return ""
	}
	return f.alerts[len(f.alerts)-1].message
}

type chanFeed struct {
	ch chan domain.Opportunity
}

func (c *chanFeed) Subscribe(context.Context) (<-chan domain.Opportunity, error) {
	return c.ch, nil
}

func coordOpp() domain.Opportunity {
	opp := dispatchOpp()
	opp.Liquidity = &domain.LiquidityProfile{
		ContractsAtBest: 100,
		Contracts1Pct:   150,
		DollarsAtBest:   50,
		Dollars1Pct:     75,
		Dollars2Pct:     100,
	}
	return opp
}

type coordFixture struct {
	coord   *Coordinator
	poly    *fakeVenue
	kalshi  *fakeVenue
	ledger  *memLedger
	gate    *risk.Gate
	alerter *fakeAlerter
	feed    *chanFeed
}

func newCoordFixture(t *testing.T, limits risk.Limits) *coordFixture {
	t.Helper()
	logger := slog.Default()
	poly := &fakeVenue{venue: domain.VenuePolymarket, balance: 10, place: fillAtRequest("p-1")}
	kalshi := &fakeVenue{venue: domain.VenueKalshi, balance: 10, place: fillAtRequest("k-1")}
	ledger := newMemLedger()
	gate := risk.NewGate(limits, ledger, logger)
	alerter := &fakeAlerter{}
	feed := &chanFeed{ch: make(chan domain.Opportunity, 8)}

	coord := NewCoordinator(
		feed, poly, kalshi, gate,
		NewDispatcher(poly, kalshi, time.Second, logger),
		NewRollbackEngine(poly, kalshi, time.Second, 0.05, logger),
		ledger, logger,
	)
	coord.SetAlerter(alerter)
	return &coordFixture{coord: coord, poly: poly, kalshi: kalshi, ledger: ledger, gate: gate, alerter: alerter, feed: feed}
}

func coordLimits() risk.Limits {
	return risk.Limits{
		MinBet:          1,
		MaxBet:          2,
		MinROI:          1,
		MaxROI:          50,
		MaxDailyTrades:  50,
		MaxDailyLoss:    5,
		MinVenueBalance: 1,
	}
}

func TestHandleOpportunity_SuccessOpensPosition(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	opp := coordOpp()

	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), opp))

	require.Len(t, fx.ledger.saved, 1)
	pos := fx.ledger.saved[0]
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.Equal(t, opp.EventKey(), pos.EventKey)
	assert.Equal(t, "p-1", pos.PolyOrderID)
	assert.Equal(t, "k-1", pos.KalshiOrderID)
	assert.InDelta(t, 2.00, pos.PolyAmount+pos.KalshiAmount, 1e-9)

	// Claim persists while the position is open.
	claimed, err := fx.ledger.IsClaimed(context.Background(), opp.EventKey())
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.Equal(t, 1, fx.gate.DailyTrades())
	assert.Equal(t, []string{notify.EventExecution}, fx.alerter.events())
	assert.Contains(t, fx.alerter.lastMessage(), "Balances:", "alert carries refreshed venue balances")
}

func TestHandleOpportunity_PartialRollsBackExactlyOnce(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	fx.kalshi.place = nil // kalshi leg never fills
	opp := coordOpp()

	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), opp))

	// One buy plus exactly one rollback sell on the filled venue.
	polyOrders := fx.poly.placed()
	require.Len(t, polyOrders, 2)
	assert.Equal(t, domain.OrderActionBuy, polyOrders[0].Action)
	assert.Equal(t, domain.OrderActionSell, polyOrders[1].Action)

	// A partial position is persisted for the operator; the claim stays in
	// place until it is resolved.
	require.Len(t, fx.ledger.saved, 1)
	pos := fx.ledger.saved[0]
	assert.Equal(t, domain.PositionStatusPartial, pos.Status)
	assert.True(t, pos.RolledBack)
	assert.Positive(t, pos.RollbackLoss)
	claimed, _ := fx.ledger.IsClaimed(context.Background(), opp.EventKey())
	assert.True(t, claimed)

	assert.Equal(t, 1, fx.gate.DailyTrades())
	assert.Negative(t, fx.gate.DailyPnL())
}

func TestHandleOpportunity_NakedExposureBlocksReexecution(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	fx.kalshi.place = nil // kalshi leg never fills
	fx.poly.place = func(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
		if req.Action == domain.OrderActionSell {
			return domain.OrderFill{}, errors.New("no counter liquidity")
		}
		return fillAtRequest("p-1")(ctx, req)
	}
	opp := coordOpp()

	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), opp))

	// The failed rollback leaves a partial record flagged as unhedged.
	require.Len(t, fx.ledger.saved, 1)
	assert.Equal(t, domain.PositionStatusPartial, fx.ledger.saved[0].Status)
	assert.False(t, fx.ledger.saved[0].RolledBack)
	claimed, _ := fx.ledger.IsClaimed(context.Background(), opp.EventKey())
	assert.True(t, claimed)

	// A fresh opportunity on the same event must not buy on top of the
	// unresolved exposure.
	again := coordOpp()
	again.ID = "opp-again"
	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), again))

	buys := 0
	for _, o := range fx.poly.placed() {
		if o.Action == domain.OrderActionBuy {
			buys++
		}
	}
	assert.Equal(t, 1, buys)
	assert.Len(t, fx.ledger.saved, 1)
}

func TestHandleOpportunity_FailedReleasesClaim(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	fx.poly.place = nil
	fx.kalshi.place = nil
	opp := coordOpp()

	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), opp))

	claimed, _ := fx.ledger.IsClaimed(context.Background(), opp.EventKey())
	assert.False(t, claimed)
	assert.Empty(t, fx.ledger.saved)
	assert.Zero(t, fx.gate.DailyTrades())
	// A failed terminal outcome still gets its one outward notification.
	assert.Equal(t, []string{notify.EventExecution}, fx.alerter.events())
}

func TestHandleOpportunity_RiskRejectionPlacesNoOrders(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	fx.gate.Disable()

	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), coordOpp()))

	assert.Empty(t, fx.poly.placed())
	assert.Empty(t, fx.kalshi.placed())
	assert.Empty(t, fx.ledger.saved)
}

func TestHandleOpportunity_ClaimContention(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	opp := coordOpp()

	// The key was claimed between the risk check and ours.
	ok, err := fx.ledger.Claim(context.Background(), opp.EventKey())
	require.NoError(t, err)
	require.True(t, ok)

	// Evaluate would reject via IsClaimed first, so bypass it with a fresh
	// ledger for the gate only.
	gateOnly := risk.NewGate(coordLimits(), newMemLedger(), slog.Default())
	fx.coord.gate = gateOnly

	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), opp))
	assert.Empty(t, fx.poly.placed(), "claimed event must not dispatch")
}

func TestHandleOpportunity_MalformedAndDuplicate(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())

	bad := coordOpp()
	bad.PolyTokenID = ""
	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), bad))
	assert.Empty(t, fx.poly.placed())

	opp := coordOpp()
	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), opp))
	require.Len(t, fx.ledger.saved, 1)

	// Same opportunity ID delivered again within the dedup window.
	fx.ledger.claims = map[string]bool{}
	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), opp))
	assert.Len(t, fx.ledger.saved, 1, "duplicate must not re-execute")
}

func TestHandleOpportunity_SaveFailureEscalates(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	fx.coord.saveRetries = 2
	fx.ledger.saveErr = errors.New("pg down")
	opp := coordOpp()

	err := fx.coord.HandleOpportunity(context.Background(), opp)
	require.Error(t, err)

	// Claim stays: the venues hold a real position.
	claimed, _ := fx.ledger.IsClaimed(context.Background(), opp.EventKey())
	assert.True(t, claimed)
	assert.Equal(t, []string{notify.EventError}, fx.alerter.events())
}

func TestHandleOpportunity_DrawdownTripsKillSwitch(t *testing.T) {
	limits := coordLimits()
	// The rollback spread loss is maxSlippage on ~1.03 contracts, just over
	// $0.05; a limit at that level trips on the first partial.
	limits.MaxDailyLoss = 0.05
	fx := newCoordFixture(t, limits)
	fx.kalshi.place = nil

	require.NoError(t, fx.coord.HandleOpportunity(context.Background(), coordOpp()))

	assert.False(t, fx.gate.Enabled())
	events := fx.alerter.events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventExecution, events[0]) // rollback report
	assert.Equal(t, notify.EventKillSwitch, events[1])
}

func TestRun_ProcessesFeedUntilClosed(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())

	fx.feed.ch <- coordOpp()
	close(fx.feed.ch)

	require.NoError(t, fx.coord.Run(context.Background()))
	assert.Len(t, fx.ledger.saved, 1)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	fx := newCoordFixture(t, coordLimits())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- fx.coord.Run(ctx) }()

	fx.feed.ch <- coordOpp()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Len(t, fx.ledger.saved, 1, "in-flight execution completes during shutdown")
}
