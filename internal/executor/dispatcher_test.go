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
)

// fakeVenue is a scriptable VenueClient shared by the executor tests.
type fakeVenue struct {
	venue   domain.Venue
	balance float64
	place   func(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error)

	mu     sync.Mutex
	orders []domain.OrderRequest
}

func (f *fakeVenue) Venue() domain.Venue { return f.venue }

func (f *fakeVenue) Balance(context.Context) (float64, error) { return f.balance, nil }

func (f *fakeVenue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
	f.mu.Lock()
	f.orders = append(f.orders, req)
	f.mu.Unlock()
	if f.place == nil {
		return domain.OrderFill{}, errors.New("no fill scripted")
	}
	return f.place(ctx, req)
}

func (f *fakeVenue) placed() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OrderRequest, len(f.orders))
	copy(out, f.orders)
	return out
}

// fillAtRequest scripts a venue to fill exactly what was asked.
func fillAtRequest(orderID string) func(context.Context, domain.OrderRequest) (domain.OrderFill, error) {
	return func(_ context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
		if req.Action == domain.OrderActionSell {
			return domain.OrderFill{
				OrderID:   orderID,
				Contracts: req.Contracts,
				AvgPrice:  req.Price,
				Cost:      req.Contracts * req.Price,
			}, nil
		}
		return domain.OrderFill{
			OrderID:   orderID,
			Contracts: req.Dollars / req.Price,
			AvgPrice:  req.Price,
			Cost:      req.Dollars,
		}, nil
	}
}

func dispatchOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-disp",
		EventTitle:   "Lakers vs Celtics",
		TeamA:        "Lakers",
		TeamB:        "Celtics",
		BuyYesVenue:  domain.VenuePolymarket,
		BuyNoVenue:   domain.VenueKalshi,
		YesPrice:     0.51,
		NoPrice:      0.48,
		ROIAfterFees: 1.02,
		PolyTokenID:  "tok-1",
		PolySide:     "yes",
		KalshiTicker: "NBA-LAL-BOS",
		KalshiSide:   "no",
	}
}

func TestSplitLegs_ProRataSumsToBet(t *testing.T) {
	poly, kalshi := SplitLegs(dispatchOpp(), 2.00)

	// Pro rata by price: 2.00 * 0.51 / 0.99, rounded to cents.
	assert.Equal(t, 1.03, poly)
	assert.Equal(t, 0.97, kalshi)
	assert.Equal(t, 2.00, poly+kalshi)

	// Both legs buy roughly the same number of contracts.
	assert.InDelta(t, poly/0.51, kalshi/0.48, 0.05)
}

func TestSplitLegs_ZeroPrices(t *testing.T) {
	poly, kalshi := SplitLegs(domain.Opportunity{}, 2.00)
	assert.Zero(t, poly)
	assert.Zero(t, kalshi)
}

func TestDispatch_BothLegsFill(t *testing.T) {
	poly := &fakeVenue{venue: domain.VenuePolymarket, place: fillAtRequest("p-1")}
	kalshi := &fakeVenue{venue: domain.VenueKalshi, place: fillAtRequest("k-1")}
	d := NewDispatcher(poly, kalshi, time.Second, slog.Default())

	out := d.Dispatch(context.Background(), dispatchOpp(), 2.00)

	require.Equal(t, domain.ExecSuccess, out.Status())
	assert.Equal(t, "p-1", out.PolyLeg.OrderID)
	assert.Equal(t, "k-1", out.KalshiLeg.OrderID)
	assert.InDelta(t, 2.00, out.TotalInvested, 1e-9)

	// Payout is one dollar per matched pair; profit is payout minus cost.
	assert.InDelta(t, 2.0196, out.GuaranteedPayout, 0.001)
	assert.InDelta(t, out.GuaranteedPayout-2.00, out.ExpectedProfit, 1e-9)

	// Both orders were fill-or-kill buys.
	for _, v := range []*fakeVenue{poly, kalshi} {
		orders := v.placed()
		require.Len(t, orders, 1)
		assert.True(t, orders[0].FillOrKill)
		assert.Equal(t, domain.OrderActionBuy, orders[0].Action)
	}
}

func TestDispatch_OneLegFails(t *testing.T) {
	poly := &fakeVenue{venue: domain.VenuePolymarket, place: fillAtRequest("p-1")}
	kalshi := &fakeVenue{venue: domain.VenueKalshi} // always errors
	d := NewDispatcher(poly, kalshi, time.Second, slog.Default())

	out := d.Dispatch(context.Background(), dispatchOpp(), 2.00)

	require.Equal(t, domain.ExecPartial, out.Status())
	filled, ok := out.FilledLeg()
	require.True(t, ok)
	assert.Equal(t, domain.VenuePolymarket, filled.Venue)
	assert.NotEmpty(t, out.KalshiLeg.Err)
	assert.Zero(t, out.GuaranteedPayout)
}

func TestDispatch_BothLegsFail(t *testing.T) {
	poly := &fakeVenue{venue: domain.VenuePolymarket}
	kalshi := &fakeVenue{venue: domain.VenueKalshi}
	d := NewDispatcher(poly, kalshi, time.Second, slog.Default())

	out := d.Dispatch(context.Background(), dispatchOpp(), 2.00)
	assert.Equal(t, domain.ExecFailed, out.Status())
	_, ok := out.FilledLeg()
	assert.False(t, ok)
}

func TestDispatch_SurvivesCallerCancellation(t *testing.T) {
	sawLiveCtx := false
	poly := &fakeVenue{venue: domain.VenuePolymarket, place: func(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
		sawLiveCtx = ctx.Err() == nil
		return fillAtRequest("p-1")(ctx, req)
	}}
	kalshi := &fakeVenue{venue: domain.VenueKalshi, place: fillAtRequest("k-1")}
	d := NewDispatcher(poly, kalshi, time.Second, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := d.Dispatch(ctx, dispatchOpp(), 2.00)
	assert.Equal(t, domain.ExecSuccess, out.Status())
	assert.True(t, sawLiveCtx, "legs must run on an uncancelled context")
}

func TestRollback_UnwindSellsExactFill(t *testing.T) {
	poly := &fakeVenue{venue: domain.VenuePolymarket, place: fillAtRequest("sell-1")}
	kalshi := &fakeVenue{venue: domain.VenueKalshi}
	r := NewRollbackEngine(poly, kalshi, time.Second, 0.05, slog.Default())

	filled := domain.LegOutcome{
		Venue:     domain.VenuePolymarket,
		Success:   true,
		OrderID:   "p-1",
		Contracts: 2.0196,
		AvgPrice:  0.51,
		Dollars:   1.03,
	}
	rb, loss := r.Unwind(context.Background(), dispatchOpp(), filled)

	require.True(t, rb.Success)
	orders := poly.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderActionSell, orders[0].Action)
	assert.True(t, orders[0].FillOrKill)
	assert.Equal(t, filled.Contracts, orders[0].Contracts)
	assert.InDelta(t, 0.51*0.95, orders[0].Price, 1e-9)

	// Loss is buy cost minus sell proceeds.
	assert.InDelta(t, 1.03-rb.Dollars, loss, 1e-9)
	assert.Greater(t, loss, 0.0)

	assert.Empty(t, kalshi.placed(), "only the filled venue is touched")
}

func TestRollback_FailureIsSingleAttempt(t *testing.T) {
	kalshi := &fakeVenue{venue: domain.VenueKalshi} // sell always errors
	poly := &fakeVenue{venue: domain.VenuePolymarket}
	r := NewRollbackEngine(poly, kalshi, time.Second, 0.05, slog.Default())

	filled := domain.LegOutcome{
		Venue:     domain.VenueKalshi,
		Success:   true,
		Contracts: 2,
		AvgPrice:  0.48,
		Dollars:   0.96,
	}
	rb, loss := r.Unwind(context.Background(), dispatchOpp(), filled)

	assert.False(t, rb.Success)
	assert.NotEmpty(t, rb.Err)
	assert.Zero(t, loss)
	assert.Len(t, kalshi.placed(), 1, "no retry after a failed rollback")
}
