package liquidity

// VolumeEstimator guesses executable contracts at best price for a venue
// that does not expose order-book depth. It is deliberately pluggable: the
// default heuristic has no real calibration behind it, and callers should
// not assume accuracy beyond monotonicity in volume.
type VolumeEstimator interface {
	Estimate(volume, yesBid, yesAsk float64) float64
}

// DefaultEstimator assumes roughly 2% of trailing volume is available at the
// best price, scaled by how tight the quoted spread is.
type DefaultEstimator struct{}

// Estimate implements VolumeEstimator.
func (DefaultEstimator) Estimate(volume, yesBid, yesAsk float64) float64 {
	if volume <= 0 {
		return 0
	}

	est := volume * 0.02

	if yesBid > 0 && yesAsk > 0 {
		spread := yesAsk - yesBid
		switch {
		case spread < 0.02:
			est *= 1.5
		case spread < 0.05:
			est *= 1.2
		case spread > 0.10:
			est *= 0.5
		}
	}

	// Any traded market is assumed to absorb at least a handful of contracts.
	if est < 10 {
		est = 10
	}
	return est
}
