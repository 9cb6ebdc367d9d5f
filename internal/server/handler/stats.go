package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// StatsStore defines the ledger methods the stats handler requires.
type StatsStore interface {
	DailyStats(ctx context.Context, day time.Time) (domain.DailyStats, error)
}

// StatsHandler serves trading statistics.
type StatsHandler struct {
	stats  StatsStore
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler with the given store and logger.
func NewStatsHandler(stats StatsStore, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// dailyStatsResponse is the wire shape of a day's statistics.
type dailyStatsResponse struct {
	Day     string  `json:"day"`
	Trades  int     `json:"trades"`
	Settled int     `json:"settled"`
	Partial int     `json:"partial"`
	PnL     float64 `json:"pnl"`
}

// GetDaily returns aggregate statistics for one UTC day.
// GET /api/stats/daily?day=2026-08-29 (defaults to today)
func (h *StatsHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	stats, err := h.stats.DailyStats(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: daily stats failed",
			slog.String("day", day.Format("2006-01-02")),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load daily stats")
		return
	}

	writeJSON(w, http.StatusOK, dailyStatsResponse{
		Day:     day.Format("2006-01-02"),
		Trades:  stats.Trades,
		Settled: stats.Settled,
		Partial: stats.Partial,
		PnL:     stats.PnL,
	})
}
