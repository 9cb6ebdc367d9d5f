// Package liquidity estimates how much size an arbitrage opportunity can
// absorb at its quoted prices before slippage erodes the edge. Polymarket
// exposes real order-book depth; Kalshi quotes only best bid/ask, so its side
// of the profile comes from a pluggable volume estimator and the whole
// profile is flagged as an estimate.
package liquidity

import (
	"github.com/mbeaudet/hedgerun/internal/domain"
)

// Slippage tiers used throughout the profile, as fractions of the target
// price.
const (
	tier1Pct = 0.01
	tier2Pct = 0.02
	tier5Pct = 0.05
)

// PolyInput is the Polymarket side of an analysis: depth for the outcome
// being bought, plus trailing volume as a fallback when depth is missing.
type PolyInput struct {
	Depth       *domain.OrderBookDepth
	TargetPrice float64
	Volume      float64
}

// KalshiInput is the Kalshi side: best quotes and trailing volume only.
type KalshiInput struct {
	TargetPrice float64
	YesBid      float64
	YesAsk      float64
	Volume      float64
}

// Analyzer builds liquidity profiles. The zero value is not usable; construct
// with NewAnalyzer.
type Analyzer struct {
	estimator VolumeEstimator
}

// NewAnalyzer creates an Analyzer. A nil estimator falls back to the default
// volume heuristic.
func NewAnalyzer(estimator VolumeEstimator) *Analyzer {
	if estimator == nil {
		estimator = DefaultEstimator{}
	}
	return &Analyzer{estimator: estimator}
}

// Analyze produces the profile for one opportunity. Returns nil when neither
// side offers any usable signal.
func (a *Analyzer) Analyze(poly PolyInput, kalshi KalshiInput) *domain.LiquidityProfile {
	estimated := false

	var polyBest, poly1, poly2, poly5 float64
	if poly.Depth != nil && len(poly.Depth.Asks) > 0 {
		d := poly.Depth
		polyBest = d.Asks[0].Size
		poly1 = d.VolumeAtOrBetter("buy", poly.TargetPrice*(1+tier1Pct))
		poly2 = d.VolumeAtOrBetter("buy", poly.TargetPrice*(1+tier2Pct))
		poly5 = d.VolumeAtOrBetter("buy", poly.TargetPrice*(1+tier5Pct))
		// Wider tolerance can never shrink the executable size.
		poly1 = max2(poly1, polyBest)
		poly2 = max2(poly2, poly1)
		poly5 = max2(poly5, poly2)
	} else {
		estimated = true
		polyBest = poly.Volume * 0.01
		poly1 = polyBest * 2
		poly2 = polyBest * 3
		poly5 = polyBest * 5
	}

	// Kalshi never exposes depth, so its side is always the estimator's
	// guess. DepthEstimated tracks whether the depth-capable side also had
	// to fall back to the volume heuristic.
	kalshiBest := a.estimator.Estimate(kalshi.Volume, kalshi.YesBid, kalshi.YesAsk)

	if polyBest <= 0 && kalshiBest <= 0 {
		return nil
	}

	atBest := min2(polyBest, kalshiBest)
	at1 := min2(poly1, kalshiBest*1.5)
	at2 := min2(poly2, kalshiBest*2)
	at5 := min2(poly5, kalshiBest*3)
	at1 = max2(at1, atBest)
	at2 = max2(at2, at1)
	at5 = max2(at5, at2)

	bottleneck := domain.VenueKalshi
	if polyBest < kalshiBest {
		bottleneck = domain.VenuePolymarket
	}

	avgPrice := (poly.TargetPrice + kalshi.TargetPrice) / 2
	if avgPrice <= 0 {
		avgPrice = 0.5
	}

	dollarsAtBest := atBest * avgPrice

	return &domain.LiquidityProfile{
		ContractsAtBest: atBest,
		Contracts1Pct:   at1,
		Contracts2Pct:   at2,
		Contracts5Pct:   at5,
		DollarsAtBest:   dollarsAtBest,
		Dollars1Pct:     at1 * avgPrice,
		Dollars2Pct:     at2 * avgPrice,
		PolyContracts:   polyBest,
		KalshiContracts: kalshiBest,
		Bottleneck:      bottleneck,
		Score:           score(dollarsAtBest),
		DepthEstimated:  estimated,
	}
}

// score maps executable dollars at best to a bounded 0-100 quality figure.
// Piecewise-linear: $50→20, $200→40, $500→60, $1000→80, $2000+→100.
func score(dollars float64) float64 {
	switch {
	case dollars >= 2000:
		return 100
	case dollars >= 1000:
		return 80 + (dollars-1000)/1000*20
	case dollars >= 500:
		return 60 + (dollars-500)/500*20
	case dollars >= 200:
		return 40 + (dollars-200)/300*20
	case dollars >= 50:
		return 20 + (dollars-50)/150*20
	default:
		return dollars / 50 * 20
	}
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
