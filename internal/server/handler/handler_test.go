package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/risk"
	"github.com/mbeaudet/hedgerun/internal/store/memory"
)

func seedPosition(t *testing.T, ledger *memory.Ledger, id string) domain.Position {
	t.Helper()
	pos := domain.Position{
		ID:              id,
		EventKey:        "nba-lal-bos",
		EventTitle:      "Lakers vs Celtics",
		PolySide:        "yes",
		PolyAmount:      1.03,
		PolyContracts:   2.02,
		PolyAvgPrice:    0.51,
		KalshiSide:      "no",
		KalshiAmount:    0.97,
		KalshiContracts: 2,
		KalshiAvgPrice:  0.48,
		ExpectedROI:     1.0,
		Status:          domain.PositionStatusOpen,
		OpenedAt:        time.Now().UTC(),
	}
	require.NoError(t, ledger.Save(context.Background(), pos))
	return pos
}

func TestListOpen(t *testing.T) {
	ledger := memory.NewLedger()
	seedPosition(t, ledger, "pos-1")
	h := NewPositionHandler(ledger, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	h.ListOpen(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "pos-1", resp.Positions[0].ID)
	assert.Equal(t, "nba-lal-bos", resp.Positions[0].EventKey)
	assert.Equal(t, "open", resp.Positions[0].Status)
}

func TestListOpen_EmptyIsNotNull(t *testing.T) {
	h := NewPositionHandler(memory.NewLedger(), slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	h.ListOpen(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"positions":[]}`, rec.Body.String())
}

func TestGetPosition_NotFound(t *testing.T) {
	h := NewPositionHandler(memory.NewLedger(), slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/positions/{id}", h.GetPosition)

	req := httptest.NewRequest(http.MethodGet, "/api/positions/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDaily(t *testing.T) {
	ledger := memory.NewLedger()
	seedPosition(t, ledger, "pos-1")
	h := NewStatsHandler(ledger, slog.Default())

	day := time.Now().UTC().Format("2006-01-02")
	req := httptest.NewRequest(http.MethodGet, "/api/stats/daily?day="+day, nil)
	rec := httptest.NewRecorder()
	h.GetDaily(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dailyStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, day, resp.Day)
	assert.Equal(t, 1, resp.Trades)
}

func TestGetDaily_RejectsBadDay(t *testing.T) {
	h := NewStatsHandler(memory.NewLedger(), slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/stats/daily?day=yesterday", nil)
	rec := httptest.NewRecorder()
	h.GetDaily(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRisk_DisableEnableRoundTrip(t *testing.T) {
	ledger := memory.NewLedger()
	gate := risk.NewGate(risk.Limits{MaxBet: 2, MaxDailyLoss: 5}, ledger, slog.Default())
	h := NewRiskHandler(gate, slog.Default())

	status := func() riskStatusResponse {
		req := httptest.NewRequest(http.MethodGet, "/api/risk", nil)
		rec := httptest.NewRecorder()
		h.GetStatus(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp riskStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	assert.True(t, status().Enabled)

	rec := httptest.NewRecorder()
	h.Disable(rec, httptest.NewRequest(http.MethodPost, "/api/risk/disable", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, status().Enabled)
	assert.False(t, gate.Enabled())

	rec = httptest.NewRecorder()
	h.Enable(rec, httptest.NewRequest(http.MethodPost, "/api/risk/enable", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, status().Enabled)

	assert.InDelta(t, 5.0, status().Limits.MaxDailyLoss, 1e-9)
}
