package domain

import "time"

// PositionStatus tracks a position from execution to settlement.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusPartial PositionStatus = "partial" // needs manual resolution
	PositionStatusSettled PositionStatus = "settled"
)

// Position is the durable record of an executed arbitrage pair. Rows are
// append-only: status transitions mutate the row, nothing deletes it.
type Position struct {
	ID         string
	EventKey   string
	EventTitle string
	TeamA      string
	TeamB      string

	// Polymarket leg.
	PolySide      string
	PolyAmount    float64
	PolyContracts float64
	PolyAvgPrice  float64
	PolyOrderID   string

	// Kalshi leg.
	KalshiSide      string
	KalshiAmount    float64
	KalshiContracts float64
	KalshiAvgPrice  float64
	KalshiOrderID   string

	ArbType     string
	ExpectedROI float64

	// Rollback bookkeeping for partial executions. RolledBack reports
	// whether the compensating sell filled; RollbackLoss is the spread loss
	// it realized. A partial with RolledBack false is naked exposure.
	RolledBack   bool
	RollbackLoss float64

	Status   PositionStatus
	OpenedAt time.Time

	// Settlement fields, populated by the ledger's Settle routine.
	SettledAt   *time.Time
	ActualPnL   *float64
	WinningSide *string
}

// DailyStats aggregates positions opened on one calendar day.
type DailyStats struct {
	Day     time.Time
	Trades  int
	Settled int
	Partial int
	PnL     float64
}
