package handler

import (
	"log/slog"
	"net/http"

	"github.com/mbeaudet/hedgerun/internal/risk"
)

// RiskHandler exposes the risk gate state and the manual kill-switch controls.
type RiskHandler struct {
	gate   *risk.Gate
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler around the given gate.
func NewRiskHandler(gate *risk.Gate, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{gate: gate, logger: logger}
}

// riskStatusResponse is the wire shape of the gate state.
type riskStatusResponse struct {
	Enabled     bool    `json:"enabled"`
	DailyTrades int     `json:"daily_trades"`
	DailyPnL    float64 `json:"daily_pnl"`

	Limits riskLimitsView `json:"limits"`
}

type riskLimitsView struct {
	MinBet          float64 `json:"min_bet"`
	MaxBet          float64 `json:"max_bet"`
	MinROI          float64 `json:"min_roi"`
	MaxROI          float64 `json:"max_roi"`
	MaxDailyTrades  int     `json:"max_daily_trades"`
	MaxDailyLoss    float64 `json:"max_daily_loss"`
	MinVenueBalance float64 `json:"min_venue_balance"`
}

// GetStatus reports whether trading is enabled and the current daily counters.
// GET /api/risk
func (h *RiskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	limits := h.gate.Limits()
	writeJSON(w, http.StatusOK, riskStatusResponse{
		Enabled:     h.gate.Enabled(),
		DailyTrades: h.gate.DailyTrades(),
		DailyPnL:    h.gate.DailyPnL(),
		Limits: riskLimitsView{
			MinBet:          limits.MinBet,
			MaxBet:          limits.MaxBet,
			MinROI:          limits.MinROI,
			MaxROI:          limits.MaxROI,
			MaxDailyTrades:  limits.MaxDailyTrades,
			MaxDailyLoss:    limits.MaxDailyLoss,
			MinVenueBalance: limits.MinVenueBalance,
		},
	})
}

// Enable re-arms trading after a kill-switch trip or a manual disable.
// POST /api/risk/enable
func (h *RiskHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.gate.Enable()
	h.logger.WarnContext(r.Context(), "trading enabled via API")
	h.GetStatus(w, r)
}

// Disable halts new trades. In-flight executions still complete.
// POST /api/risk/disable
func (h *RiskHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.gate.Disable()
	h.logger.WarnContext(r.Context(), "trading disabled via API")
	h.GetStatus(w, r)
}
