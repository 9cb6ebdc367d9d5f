// Package memory implements the position ledger in process memory. It backs
// paper-trading mode and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// Ledger is an in-memory domain.PositionLedger. A single mutex guards both
// the claim set and the position map, so a claim and the save that follows it
// observe a consistent view.
type Ledger struct {
	mu        sync.Mutex
	claims    map[string]struct{}
	positions map[string]domain.Position
}

var _ domain.PositionLedger = (*Ledger)(nil)

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		claims:    make(map[string]struct{}),
		positions: make(map[string]domain.Position),
	}
}

// Claim reserves eventKey. Exactly one of any set of concurrent callers wins.
func (l *Ledger) Claim(_ context.Context, eventKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.claims[eventKey]; taken {
		return false, nil
	}
	l.claims[eventKey] = struct{}{}
	return true, nil
}

// Release removes a claim.
func (l *Ledger) Release(_ context.Context, eventKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, eventKey)
	return nil
}

// IsClaimed reports whether eventKey has a claim.
func (l *Ledger) IsClaimed(_ context.Context, eventKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, taken := l.claims[eventKey]
	return taken, nil
}

// Save upserts a position by id.
func (l *Ledger) Save(_ context.Context, pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[pos.ID] = pos
	return nil
}

// GetByID retrieves a position.
func (l *Ledger) GetByID(_ context.Context, id string) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

// GetOpen returns unsettled positions ordered by open time.
func (l *Ledger) GetOpen(_ context.Context) ([]domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Position
	for _, pos := range l.positions {
		if pos.Status == domain.PositionStatusOpen || pos.Status == domain.PositionStatusPartial {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

// Settle transitions a position to settled.
func (l *Ledger) Settle(_ context.Context, id string, actualPnL float64, winningSide string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[id]
	if !ok || pos.Status == domain.PositionStatusSettled {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	pos.Status = domain.PositionStatusSettled
	pos.SettledAt = &now
	pos.ActualPnL = &actualPnL
	pos.WinningSide = &winningSide
	l.positions[id] = pos
	return nil
}

// DailyStats aggregates positions opened on the given UTC day.
func (l *Ledger) DailyStats(_ context.Context, day time.Time) (domain.DailyStats, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()

	stats := domain.DailyStats{Day: dayStart}
	for _, pos := range l.positions {
		opened := pos.OpenedAt.UTC()
		if opened.Before(dayStart) || !opened.Before(dayEnd) {
			continue
		}
		stats.Trades++
		switch pos.Status {
		case domain.PositionStatusSettled:
			stats.Settled++
			if pos.ActualPnL != nil {
				stats.PnL += *pos.ActualPnL
			}
		case domain.PositionStatusPartial:
			stats.Partial++
		}
	}
	return stats, nil
}
