package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// RollbackEngine unwinds the filled leg of a partial execution. One attempt,
// one fill-or-kill sell of the exact contracts that filled. There is no retry
// loop: a rollback that fails leaves a naked position that needs a human, and
// the caller escalates instead of hammering the venue.
type RollbackEngine struct {
	poly        domain.VenueClient
	kalshi      domain.VenueClient
	timeout     time.Duration
	maxSlippage float64
	logger      *slog.Logger
}

// NewRollbackEngine creates a RollbackEngine. maxSlippage is the fraction
// below the original fill price the sell is allowed to execute at.
func NewRollbackEngine(poly, kalshi domain.VenueClient, timeout time.Duration, maxSlippage float64, logger *slog.Logger) *RollbackEngine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxSlippage <= 0 {
		maxSlippage = 0.05
	}
	return &RollbackEngine{
		poly:        poly,
		kalshi:      kalshi,
		timeout:     timeout,
		maxSlippage: maxSlippage,
		logger:      logger.With(slog.String("component", "rollback")),
	}
}

// Unwind sells back the contracts of the filled leg. It returns the rollback
// outcome and the realized spread loss (what the buy cost minus what the sell
// recovered). The loss is zero when the sell did not execute; in that case the
// outcome's Success is false and its Err describes the failure.
func (r *RollbackEngine) Unwind(ctx context.Context, opp domain.Opportunity, filled domain.LegOutcome) (domain.LegOutcome, float64) {
	var client domain.VenueClient
	var marketID, side string
	if filled.Venue == domain.VenuePolymarket {
		client, marketID, side = r.poly, opp.PolyTokenID, opp.PolySide
	} else {
		client, marketID, side = r.kalshi, opp.KalshiTicker, opp.KalshiSide
	}

	req := domain.OrderRequest{
		MarketID:   marketID,
		Side:       side,
		Action:     domain.OrderActionSell,
		Price:      filled.AvgPrice * (1 - r.maxSlippage),
		Contracts:  filled.Contracts,
		FillOrKill: true,
	}

	// Rollback must run even when the originating context is already
	// cancelled: the one-sided position exists regardless.
	sellCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	fill, err := client.PlaceOrder(sellCtx, req)
	if err != nil {
		r.logger.Error("rollback sell failed, position is naked",
			slog.String("venue", string(filled.Venue)),
			slog.String("market", marketID),
			slog.Float64("contracts", filled.Contracts),
			slog.String("error", err.Error()),
		)
		return domain.LegOutcome{Venue: filled.Venue, Err: err.Error()}, 0
	}

	loss := filled.Dollars - fill.Cost
	r.logger.Warn("partial fill rolled back",
		slog.String("venue", string(filled.Venue)),
		slog.String("order_id", fill.OrderID),
		slog.Float64("contracts", fill.Contracts),
		slog.Float64("loss", loss),
	)
	return domain.LegOutcome{
		Venue:     filled.Venue,
		Success:   true,
		OrderID:   fill.OrderID,
		Contracts: fill.Contracts,
		AvgPrice:  fill.AvgPrice,
		Dollars:   fill.Cost,
	}, loss
}
