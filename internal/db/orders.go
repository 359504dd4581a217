package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"papertrade/internal/models"
)

const orderColumns = "id, account_id, instrument_id, side, type, quantity, limit_price, stop_price, " +
	"status, filled_quantity, avg_fill_price, placed_at, filled_at, cancelled_at"

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(&order.ID, &order.AccountID, &order.InstrumentID, &order.Side, &order.Type,
		&order.Quantity, &order.LimitPrice, &order.StopPrice, &order.Status,
		&order.FilledQuantity, &order.AvgFillPrice, &order.PlacedAt, &order.FilledAt, &order.CancelledAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrder inserts a new PENDING order
func (db *DB) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.Side != models.SideBuy && order.Side != models.SideSell {
		return nil, fmt.Errorf("side must be BUY or SELL")
	}
	if !order.Quantity.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive")
	}

	row := db.Pool.QueryRow(ctx,
		"INSERT INTO orders (id, account_id, instrument_id, side, type, quantity, limit_price, stop_price, status) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING "+orderColumns,
		uuid.New(), order.AccountID, order.InstrumentID, order.Side, order.Type,
		order.Quantity, order.LimitPrice, order.StopPrice, models.OrderStatusPending)
	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// GetOrder retrieves an order by id
func (db *DB) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetUserOrder retrieves an order only if its account belongs to the user
func (db *DB) GetUserOrder(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT o.id, o.account_id, o.instrument_id, o.side, o.type, o.quantity, o.limit_price, o.stop_price, "+
			"o.status, o.filled_quantity, o.avg_fill_price, o.placed_at, o.filled_at, o.cancelled_at "+
			"FROM orders o JOIN accounts a ON o.account_id = a.id WHERE o.id = $1 AND a.user_id = $2",
		id, userID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListUserOrders retrieves the user's orders, newest first, optionally
// filtered by account and status
func (db *DB) ListUserOrders(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID, status string) ([]models.Order, error) {
	sql := "SELECT o.id, o.account_id, o.instrument_id, o.side, o.type, o.quantity, o.limit_price, o.stop_price, " +
		"o.status, o.filled_quantity, o.avg_fill_price, o.placed_at, o.filled_at, o.cancelled_at " +
		"FROM orders o JOIN accounts a ON o.account_id = a.id WHERE a.user_id = $1"
	args := []any{userID}
	if accountID != nil {
		args = append(args, *accountID)
		sql += fmt.Sprintf(" AND o.account_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		sql += fmt.Sprintf(" AND o.status = $%d", len(args))
	}
	sql += " ORDER BY o.placed_at DESC"

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// CancelOrder cancels an order if it belongs to the user and is still
// PENDING or OPEN. The row is locked for the status check so concurrent
// cancels (or a racing fill) cannot both win.
func (db *DB) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		"SELECT o.status FROM orders o JOIN accounts a ON o.account_id = a.id "+
			"WHERE o.id = $1 AND a.user_id = $2 FOR UPDATE OF o",
		orderID, userID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("order not found or not owned by user")
		}
		return fmt.Errorf("failed to get order: %w", err)
	}

	if status != models.OrderStatusPending && status != models.OrderStatusOpen {
		return fmt.Errorf("order not cancellable from status %s", status)
	}

	_, err = tx.Exec(ctx,
		"UPDATE orders SET status = $1, cancelled_at = NOW() WHERE id = $2",
		models.OrderStatusCancelled, orderID)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
