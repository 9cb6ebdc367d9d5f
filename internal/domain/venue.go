package domain

import "context"

// OrderAction indicates whether an order opens or unwinds inventory.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "buy"
	OrderActionSell OrderAction = "sell"
)

// OrderRequest is a venue-neutral order. Buys are sized in dollars and the
// venue converts to its native quantity (Polymarket takes dollars directly,
// Kalshi floors to whole contracts). Sells are sized in contracts because
// rollback must liquidate an exact fill count.
type OrderRequest struct {
	MarketID   string // Polymarket token id or Kalshi ticker
	Side       string // "yes" or "no"
	Action     OrderAction
	Price      float64
	Dollars    float64 // buy sizing
	Contracts  float64 // sell sizing
	FillOrKill bool
}

// OrderFill is the venue's report of what actually executed.
type OrderFill struct {
	OrderID   string
	Contracts float64
	AvgPrice  float64
	Cost      float64
}

// VenueClient is the thin per-venue trading interface the coordinator
// depends on. Implementations wrap the venue REST APIs; authentication and
// session handling live entirely behind this boundary.
type VenueClient interface {
	Venue() Venue
	// Balance returns the available cash balance in dollars.
	Balance(ctx context.Context) (float64, error)
	// PlaceOrder submits an order and returns the actual fill. A rejected or
	// unfilled fill-or-kill order is returned as an error.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderFill, error)
}

// ResultSource reports the settlement result of a market: "yes", "no", or ""
// while undetermined.
type ResultSource interface {
	Result(ctx context.Context, marketID string) (string, error)
}
