package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// positionView is the wire shape of a position. Wire tags stay out of the
// domain types.
type positionView struct {
	ID         string `json:"id"`
	EventKey   string `json:"event_key"`
	EventTitle string `json:"event_title"`

	PolySide      string  `json:"poly_side"`
	PolyAmount    float64 `json:"poly_amount"`
	PolyContracts float64 `json:"poly_contracts"`
	PolyAvgPrice  float64 `json:"poly_avg_price"`

	KalshiSide      string  `json:"kalshi_side"`
	KalshiAmount    float64 `json:"kalshi_amount"`
	KalshiContracts float64 `json:"kalshi_contracts"`
	KalshiAvgPrice  float64 `json:"kalshi_avg_price"`

	ExpectedROI float64 `json:"expected_roi"`

	RolledBack   bool    `json:"rolled_back,omitempty"`
	RollbackLoss float64 `json:"rollback_loss,omitempty"`

	Status   string    `json:"status"`
	OpenedAt time.Time `json:"opened_at"`

	SettledAt   *time.Time `json:"settled_at,omitempty"`
	ActualPnL   *float64   `json:"actual_pnl,omitempty"`
	WinningSide *string    `json:"winning_side,omitempty"`
}

func toPositionView(p domain.Position) positionView {
	return positionView{
		ID:         p.ID,
		EventKey:   p.EventKey,
		EventTitle: p.EventTitle,

		PolySide:      p.PolySide,
		PolyAmount:    p.PolyAmount,
		PolyContracts: p.PolyContracts,
		PolyAvgPrice:  p.PolyAvgPrice,

		KalshiSide:      p.KalshiSide,
		KalshiAmount:    p.KalshiAmount,
		KalshiContracts: p.KalshiContracts,
		KalshiAvgPrice:  p.KalshiAvgPrice,

		ExpectedROI: p.ExpectedROI,

		RolledBack:   p.RolledBack,
		RollbackLoss: p.RollbackLoss,

		Status:   string(p.Status),
		OpenedAt: p.OpenedAt,

		SettledAt:   p.SettledAt,
		ActualPnL:   p.ActualPnL,
		WinningSide: p.WinningSide,
	}
}
