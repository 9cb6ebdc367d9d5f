package domain

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBookDepth holds sorted depth for one venue/outcome pair. Bids are
// sorted best (highest) first, asks best (lowest) first. The walk helpers
// below rely on that ordering to stop at the first worse level; with an
// unsorted book they would under-count, so sortedness is a correctness
// requirement on the producer, not an optimization here.
type OrderBookDepth struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// BestBid returns the top-of-book bid price, 0 when the side is empty.
func (d OrderBookDepth) BestBid() float64 {
	if len(d.Bids) == 0 {
		return 0
	}
	return d.Bids[0].Price
}

// BestAsk returns the top-of-book ask price, 0 when the side is empty.
func (d OrderBookDepth) BestAsk() float64 {
	if len(d.Asks) == 0 {
		return 0
	}
	return d.Asks[0].Price
}

// VolumeAtOrBetter accumulates size over levels priced at least as well as
// limit for the given side ("buy" walks asks, "sell" walks bids) and stops at
// the first level that is worse.
func (d OrderBookDepth) VolumeAtOrBetter(side string, limit float64) float64 {
	var total float64
	if side == "buy" {
		for _, lvl := range d.Asks {
			if lvl.Price > limit {
				break
			}
			total += lvl.Size
		}
		return total
	}
	for _, lvl := range d.Bids {
		if lvl.Price < limit {
			break
		}
		total += lvl.Size
	}
	return total
}

// CostToFill walks the book accumulating cost until target contracts are
// filled or the book is exhausted. It returns the filled amount, the total
// cost, and the realized average price (0 when nothing filled). Callers must
// check filled rather than assume full execution.
func (d OrderBookDepth) CostToFill(side string, target float64) (filled, cost, avgPrice float64) {
	levels := d.Asks
	if side == "sell" {
		levels = d.Bids
	}
	remaining := target
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		cost += take * lvl.Price
		filled += take
		remaining -= take
	}
	if filled > 0 {
		avgPrice = cost / filled
	}
	return filled, cost, avgPrice
}

// LiquidityProfile estimates how much size is executable at an opportunity's
// prices before slippage erodes the edge. Contract figures at wider slippage
// tiers are monotonically non-decreasing.
type LiquidityProfile struct {
	ContractsAtBest float64
	Contracts1Pct   float64
	Contracts2Pct   float64
	Contracts5Pct   float64

	DollarsAtBest float64
	Dollars1Pct   float64
	Dollars2Pct   float64

	PolyContracts   float64
	KalshiContracts float64

	// Bottleneck is the venue offering less size at zero slippage.
	Bottleneck Venue

	// Score is a bounded 0-100 quality figure.
	Score float64

	// DepthEstimated marks profiles where the depth-capable venue's side had
	// to fall back to the volume heuristic. The depth-less venue's side is
	// always an estimate; this flag tracks whether the whole profile is one.
	// Downstream risk logic treats such profiles as low confidence.
	DepthEstimated bool
}
