package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

const positionColumns = "id, account_id, instrument_id, quantity, avg_price, realized_pnl, unrealized_pnl, opened_at"

func scanPosition(row interface{ Scan(...any) error }) (*models.Position, error) {
	pos := &models.Position{}
	err := row.Scan(&pos.ID, &pos.AccountID, &pos.InstrumentID, &pos.Quantity,
		&pos.AvgPrice, &pos.RealizedPnl, &pos.UnrealizedPnl, &pos.OpenedAt)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// GetPositions retrieves all positions for an account
func (db *DB) GetPositions(ctx context.Context, accountID uuid.UUID) ([]models.Position, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+positionColumns+" FROM positions WHERE account_id = $1 ORDER BY opened_at", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *pos)
	}
	return positions, rows.Err()
}

// PositionHolding is a position joined with its instrument symbol, for
// mark-to-market pricing
type PositionHolding struct {
	Position models.Position
	Symbol   string
}

// GetHoldings retrieves an account's positions with symbols attached
func (db *DB) GetHoldings(ctx context.Context, accountID uuid.UUID) ([]PositionHolding, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT p.id, p.account_id, p.instrument_id, p.quantity, p.avg_price, p.realized_pnl, p.unrealized_pnl, p.opened_at, i.symbol "+
			"FROM positions p JOIN instruments i ON p.instrument_id = i.id WHERE p.account_id = $1",
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	var holdings []PositionHolding
	for rows.Next() {
		var h PositionHolding
		err := rows.Scan(&h.Position.ID, &h.Position.AccountID, &h.Position.InstrumentID,
			&h.Position.Quantity, &h.Position.AvgPrice, &h.Position.RealizedPnl,
			&h.Position.UnrealizedPnl, &h.Position.OpenedAt, &h.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// UpdatePositionUnrealized sets the marked unrealized P&L on a position
func (db *DB) UpdatePositionUnrealized(ctx context.Context, id uuid.UUID, unrealized decimal.Decimal) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE positions SET unrealized_pnl = $1 WHERE id = $2", unrealized, id)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return nil
}
