// Package paper is a simulated trading venue for dry-run mode. Every order
// fills in full at its requested price against a configured bankroll, so the
// rest of the pipeline runs exactly as it would live.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// Client is an in-memory domain.VenueClient.
type Client struct {
	venue domain.Venue

	mu      sync.Mutex
	balance float64
	orders  int
}

var _ domain.VenueClient = (*Client)(nil)

// NewClient creates a paper venue with the given starting bankroll.
func NewClient(venue domain.Venue, bankroll float64) *Client {
	return &Client{venue: venue, balance: bankroll}
}

// Venue identifies the simulated venue.
func (c *Client) Venue() domain.Venue {
	return c.venue
}

// Balance returns the remaining bankroll.
func (c *Client) Balance(context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

// PlaceOrder fills the order at its requested price. Buys debit the bankroll
// and sells credit it; a buy larger than the bankroll is rejected the way a
// real venue would reject it.
func (c *Client) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
	if req.Price <= 0 {
		return domain.OrderFill{}, fmt.Errorf("paper: non-positive price: %w", domain.ErrInvalidOrder)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var fill domain.OrderFill
	switch req.Action {
	case domain.OrderActionBuy:
		if req.Dollars <= 0 {
			return domain.OrderFill{}, fmt.Errorf("paper: zero-sized buy: %w", domain.ErrInvalidOrder)
		}
		if req.Dollars > c.balance {
			return domain.OrderFill{}, fmt.Errorf("paper: insufficient balance: $%.2f > $%.2f", req.Dollars, c.balance)
		}
		c.balance -= req.Dollars
		fill = domain.OrderFill{
			Contracts: req.Dollars / req.Price,
			AvgPrice:  req.Price,
			Cost:      req.Dollars,
		}
	case domain.OrderActionSell:
		if req.Contracts <= 0 {
			return domain.OrderFill{}, fmt.Errorf("paper: zero-sized sell: %w", domain.ErrInvalidOrder)
		}
		proceeds := req.Contracts * req.Price
		c.balance += proceeds
		fill = domain.OrderFill{
			Contracts: req.Contracts,
			AvgPrice:  req.Price,
			Cost:      proceeds,
		}
	default:
		return domain.OrderFill{}, fmt.Errorf("paper: unknown action %q: %w", req.Action, domain.ErrInvalidOrder)
	}

	c.orders++
	fill.OrderID = fmt.Sprintf("paper-%s-%s", c.venue, uuid.New().String()[:8])
	return fill, nil
}

// Credit adds to the bankroll. The settlement monitor uses it to pay out
// winning paper positions.
func (c *Client) Credit(amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance += amount
}
