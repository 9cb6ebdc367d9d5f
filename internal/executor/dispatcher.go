// Package executor places the two legs of a cross-venue arbitrage and owns
// everything that happens between an approved opportunity and a persisted
// position: leg sizing, concurrent fill-or-kill placement, rollback of
// one-sided fills, and the coordinator loop that drives it all.
package executor

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// SplitLegs divides betSize across the two legs pro rata by price, so both
// legs buy approximately the same number of contracts. Amounts are rounded to
// cents and the Kalshi leg absorbs the rounding remainder, keeping the sum
// exactly equal to betSize.
func SplitLegs(opp domain.Opportunity, betSize float64) (polyDollars, kalshiDollars float64) {
	pa := opp.PolyPrice()
	pb := opp.KalshiPrice()
	if pa+pb <= 0 {
		return 0, 0
	}
	polyDollars = math.Round(betSize*pa/(pa+pb)*100) / 100
	kalshiDollars = math.Round((betSize-polyDollars)*100) / 100
	return polyDollars, kalshiDollars
}

// Dispatcher submits both legs of an opportunity concurrently as fill-or-kill
// orders and reports what actually filled. It never returns an error: a leg
// that could not be placed is a failed LegOutcome, and the caller decides what
// the combination of the two outcomes means.
type Dispatcher struct {
	poly       domain.VenueClient
	kalshi     domain.VenueClient
	legTimeout time.Duration
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given per-leg timeout.
func NewDispatcher(poly, kalshi domain.VenueClient, legTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if legTimeout <= 0 {
		legTimeout = 15 * time.Second
	}
	return &Dispatcher{
		poly:       poly,
		kalshi:     kalshi,
		legTimeout: legTimeout,
		logger:     logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch places both legs and waits for both to resolve. Once dispatch
// begins the legs run to completion on their own timeout even if the caller's
// context is cancelled: abandoning an order mid-flight would leave the fill
// state unknown.
func (d *Dispatcher) Dispatch(ctx context.Context, opp domain.Opportunity, betSize float64) domain.ExecutionOutcome {
	polyDollars, kalshiDollars := SplitLegs(opp, betSize)

	d.logger.Info("dispatching legs",
		slog.String("event", opp.EventKey()),
		slog.Float64("bet", betSize),
		slog.Float64("poly_dollars", polyDollars),
		slog.Float64("kalshi_dollars", kalshiDollars),
	)

	base := context.WithoutCancel(ctx)

	polyReq := domain.OrderRequest{
		MarketID:   opp.PolyTokenID,
		Side:       opp.PolySide,
		Action:     domain.OrderActionBuy,
		Price:      opp.PolyPrice(),
		Dollars:    polyDollars,
		FillOrKill: true,
	}
	kalshiReq := domain.OrderRequest{
		MarketID:   opp.KalshiTicker,
		Side:       opp.KalshiSide,
		Action:     domain.OrderActionBuy,
		Price:      opp.KalshiPrice(),
		Dollars:    kalshiDollars,
		FillOrKill: true,
	}

	var out domain.ExecutionOutcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.PolyLeg = d.placeLeg(base, d.poly, polyReq)
	}()
	go func() {
		defer wg.Done()
		out.KalshiLeg = d.placeLeg(base, d.kalshi, kalshiReq)
	}()
	wg.Wait()

	out.ExecutedAt = time.Now().UTC()

	if out.Status() == domain.ExecSuccess {
		out.TotalInvested = out.PolyLeg.Dollars + out.KalshiLeg.Dollars
		// One leg of every matched contract pair pays $1 at settlement.
		out.GuaranteedPayout = math.Min(out.PolyLeg.Contracts, out.KalshiLeg.Contracts)
		out.ExpectedProfit = out.GuaranteedPayout - out.TotalInvested
	}

	return out
}

// placeLeg submits one order with the per-leg timeout and converts the result
// into a LegOutcome. Placement errors, including unfilled fill-or-kill
// rejections, become failed outcomes rather than errors.
func (d *Dispatcher) placeLeg(ctx context.Context, client domain.VenueClient, req domain.OrderRequest) domain.LegOutcome {
	legCtx, cancel := context.WithTimeout(ctx, d.legTimeout)
	defer cancel()

	fill, err := client.PlaceOrder(legCtx, req)
	if err != nil {
		d.logger.Warn("leg did not fill",
			slog.String("venue", string(client.Venue())),
			slog.String("market", req.MarketID),
			slog.String("error", err.Error()),
		)
		return domain.LegOutcome{Venue: client.Venue(), Err: err.Error()}
	}

	d.logger.Info("leg filled",
		slog.String("venue", string(client.Venue())),
		slog.String("order_id", fill.OrderID),
		slog.Float64("contracts", fill.Contracts),
		slog.Float64("avg_price", fill.AvgPrice),
	)
	return domain.LegOutcome{
		Venue:     client.Venue(),
		Success:   true,
		OrderID:   fill.OrderID,
		Contracts: fill.Contracts,
		AvgPrice:  fill.AvgPrice,
		Dollars:   fill.Cost,
	}
}
