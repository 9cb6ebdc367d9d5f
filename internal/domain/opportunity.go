package domain

import (
	"fmt"
	"strings"
	"time"
)

// Venue identifies one of the two prediction-market venues.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
)

// Confidence is the match-confidence tier assigned by the upstream event
// matcher.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Opportunity is a fully-formed cross-venue arbitrage candidate handed down
// by the upstream scanner. It is immutable for the duration of an execution
// attempt. Exactly one venue buys YES and the other buys NO; the two prices
// summing below 1.0 is what makes the pair profitable.
type Opportunity struct {
	ID         string
	EventTitle string
	TeamA      string
	TeamB      string

	BuyYesVenue Venue
	BuyNoVenue  Venue
	YesPrice    float64
	NoPrice     float64

	TotalCost    float64
	ROIAfterFees float64 // percent, net of venue fees

	ArbType    string // "yes_no", "cross_team"
	Live       bool   // event is in progress
	Confidence Confidence
	Executable bool // prices derived from executable bid/ask, not midpoints

	// Venue order identifiers. Both are required for execution.
	PolyTokenID  string
	PolySide     string // "yes" or "no"
	KalshiTicker string
	KalshiSide   string // "yes" or "no"

	Liquidity *LiquidityProfile

	FoundAt time.Time
}

// EventKey returns the deduplication/claim key for this opportunity. The
// Kalshi ticker is preferred because team-name keys are sensitive to how the
// upstream matcher normalizes names.
func (o Opportunity) EventKey() string {
	if o.KalshiTicker != "" {
		return strings.ToLower(o.KalshiTicker)
	}
	return strings.ToLower(o.TeamA + ":" + o.TeamB)
}

// PolyPrice returns the price of the outcome bought on Polymarket.
func (o Opportunity) PolyPrice() float64 {
	if o.BuyYesVenue == VenuePolymarket {
		return o.YesPrice
	}
	return o.NoPrice
}

// KalshiPrice returns the price of the outcome bought on Kalshi.
func (o Opportunity) KalshiPrice() float64 {
	if o.BuyYesVenue == VenueKalshi {
		return o.YesPrice
	}
	return o.NoPrice
}

// Validate checks that the opportunity carries everything execution needs.
// A failure here is a construction defect in the upstream feed, not a risk
// rejection.
func (o Opportunity) Validate() error {
	if o.PolyTokenID == "" {
		return fmt.Errorf("opportunity %s: missing polymarket token id", o.ID)
	}
	if o.KalshiTicker == "" {
		return fmt.Errorf("opportunity %s: missing kalshi ticker", o.ID)
	}
	if o.PolySide == "" || o.KalshiSide == "" {
		return fmt.Errorf("opportunity %s: missing leg sides", o.ID)
	}
	if o.BuyYesVenue == o.BuyNoVenue {
		return fmt.Errorf("opportunity %s: both outcomes assigned to %s", o.ID, o.BuyYesVenue)
	}
	if o.YesPrice <= 0 || o.NoPrice <= 0 {
		return fmt.Errorf("opportunity %s: non-positive leg price", o.ID)
	}
	return nil
}
