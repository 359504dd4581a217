package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"papertrade/internal/models"
)

const instrumentColumns = "id, symbol, name, type, strike_price, expiry_date, option_type, created_at"

func scanInstrument(row interface{ Scan(...any) error }) (*models.Instrument, error) {
	inst := &models.Instrument{}
	err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.Type,
		&inst.StrikePrice, &inst.ExpiryDate, &inst.OptionType, &inst.CreatedAt)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateInstrument inserts a catalog entry
func (db *DB) CreateInstrument(ctx context.Context, inst *models.Instrument) (*models.Instrument, error) {
	row := db.Pool.QueryRow(ctx,
		"INSERT INTO instruments (id, symbol, name, type, strike_price, expiry_date, option_type) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+instrumentColumns,
		uuid.New(), inst.Symbol, inst.Name, inst.Type, inst.StrikePrice, inst.ExpiryDate, inst.OptionType)
	created, err := scanInstrument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument: %w", err)
	}
	return created, nil
}

// GetInstrument retrieves an instrument by id
func (db *DB) GetInstrument(ctx context.Context, id uuid.UUID) (*models.Instrument, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+instrumentColumns+" FROM instruments WHERE id = $1", id)
	inst, err := scanInstrument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return inst, nil
}

// GetInstrumentBySymbol retrieves an instrument by symbol
func (db *DB) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+instrumentColumns+" FROM instruments WHERE symbol = $1", symbol)
	inst, err := scanInstrument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return inst, nil
}

// SearchInstruments finds instruments whose symbol or name contains the
// query, optionally filtered by type, capped at 20 rows
func (db *DB) SearchInstruments(ctx context.Context, query, instrumentType string) ([]models.Instrument, error) {
	sql := "SELECT " + instrumentColumns + " FROM instruments " +
		"WHERE (symbol ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')"
	args := []any{query}
	if instrumentType != "" {
		sql += " AND type = $2"
		args = append(args, instrumentType)
	}
	sql += " ORDER BY symbol LIMIT 20"

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search instruments: %w", err)
	}
	defer rows.Close()

	var instruments []models.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, *inst)
	}
	return instruments, rows.Err()
}

// ListInstruments returns the whole catalog
func (db *DB) ListInstruments(ctx context.Context) ([]models.Instrument, error) {
	rows, err := db.Pool.Query(ctx, "SELECT "+instrumentColumns+" FROM instruments ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []models.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, *inst)
	}
	return instruments, rows.Err()
}
