package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// Ledger implements domain.PositionLedger on PostgreSQL. Claims live in the
// event_claims table; the primary key insert is what makes racing claims
// resolve to exactly one winner.
type Ledger struct {
	pool *pgxpool.Pool
}

var _ domain.PositionLedger = (*Ledger)(nil)

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Claim atomically reserves eventKey. The ON CONFLICT DO NOTHING insert
// affects one row for exactly one of any set of concurrent callers.
func (l *Ledger) Claim(ctx context.Context, eventKey string) (bool, error) {
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO event_claims (event_key) VALUES ($1) ON CONFLICT DO NOTHING`,
		eventKey,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: claim %s: %w", eventKey, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release removes a claim. Releasing an unclaimed key is a no-op.
func (l *Ledger) Release(ctx context.Context, eventKey string) error {
	if _, err := l.pool.Exec(ctx,
		`DELETE FROM event_claims WHERE event_key = $1`, eventKey,
	); err != nil {
		return fmt.Errorf("postgres: release %s: %w", eventKey, err)
	}
	return nil
}

// IsClaimed reports whether eventKey currently has a claim.
func (l *Ledger) IsClaimed(ctx context.Context, eventKey string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM event_claims WHERE event_key = $1)`, eventKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check claim %s: %w", eventKey, err)
	}
	return exists, nil
}

const positionCols = `id, event_key, event_title, team_a, team_b,
	poly_side, poly_amount, poly_contracts, poly_avg_price, poly_order_id,
	kalshi_side, kalshi_amount, kalshi_contracts, kalshi_avg_price, kalshi_order_id,
	arb_type, expected_roi, rolled_back, rollback_loss, status, opened_at,
	settled_at, actual_pnl, winning_side`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string
	err := row.Scan(
		&p.ID, &p.EventKey, &p.EventTitle, &p.TeamA, &p.TeamB,
		&p.PolySide, &p.PolyAmount, &p.PolyContracts, &p.PolyAvgPrice, &p.PolyOrderID,
		&p.KalshiSide, &p.KalshiAmount, &p.KalshiContracts, &p.KalshiAvgPrice, &p.KalshiOrderID,
		&p.ArbType, &p.ExpectedROI, &p.RolledBack, &p.RollbackLoss, &status, &p.OpenedAt,
		&p.SettledAt, &p.ActualPnL, &p.WinningSide,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// Save upserts a position by id.
func (l *Ledger) Save(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, event_key, event_title, team_a, team_b,
			poly_side, poly_amount, poly_contracts, poly_avg_price, poly_order_id,
			kalshi_side, kalshi_amount, kalshi_contracts, kalshi_avg_price, kalshi_order_id,
			arb_type, expected_roi, rolled_back, rollback_loss, status, opened_at,
			settled_at, actual_pnl, winning_side, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status       = EXCLUDED.status,
			settled_at   = EXCLUDED.settled_at,
			actual_pnl   = EXCLUDED.actual_pnl,
			winning_side = EXCLUDED.winning_side,
			updated_at   = NOW()`

	_, err := l.pool.Exec(ctx, query,
		p.ID, p.EventKey, p.EventTitle, p.TeamA, p.TeamB,
		p.PolySide, p.PolyAmount, p.PolyContracts, p.PolyAvgPrice, p.PolyOrderID,
		p.KalshiSide, p.KalshiAmount, p.KalshiContracts, p.KalshiAvgPrice, p.KalshiOrderID,
		p.ArbType, p.ExpectedROI, p.RolledBack, p.RollbackLoss, string(p.Status), p.OpenedAt,
		p.SettledAt, p.ActualPnL, p.WinningSide,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position.
func (l *Ledger) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetOpen returns positions that still await settlement.
func (l *Ledger) GetOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE status IN ('open', 'partial')
		 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate open positions: %w", err)
	}
	return positions, nil
}

// Settle transitions a position to settled and records its realized P&L. A
// position that is already settled or does not exist yields ErrNotFound.
func (l *Ledger) Settle(ctx context.Context, id string, actualPnL float64, winningSide string) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE positions SET
			status       = 'settled',
			settled_at   = NOW(),
			actual_pnl   = $2,
			winning_side = $3,
			updated_at   = NOW()
		WHERE id = $1 AND status <> 'settled'`,
		id, actualPnL, winningSide,
	)
	if err != nil {
		return fmt.Errorf("postgres: settle position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DailyStats aggregates positions opened on the given UTC calendar day.
func (l *Ledger) DailyStats(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var stats domain.DailyStats
	stats.Day = dayStart
	err := l.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'settled'),
			COUNT(*) FILTER (WHERE status = 'partial'),
			COALESCE(SUM(actual_pnl), 0)
		FROM positions
		WHERE opened_at >= $1 AND opened_at < $1 + INTERVAL '1 day'`,
		dayStart,
	).Scan(&stats.Trades, &stats.Settled, &stats.Partial, &stats.PnL)
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("postgres: daily stats for %s: %w", dayStart.Format("2006-01-02"), err)
	}
	return stats, nil
}
