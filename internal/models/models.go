package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types
const (
	OrderTypeMarket    = "MARKET"
	OrderTypeLimit     = "LIMIT"
	OrderTypeStop      = "STOP"
	OrderTypeStopLimit = "STOP_LIMIT"
)

// Order statuses
const (
	OrderStatusPending         = "PENDING"
	OrderStatusOpen            = "OPEN"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"
)

// Account types
const (
	AccountTypePaper = "PAPER"
	AccountTypeLive  = "LIVE"
)

// Instrument types
const (
	InstrumentTypeStock  = "STOCK"
	InstrumentTypeETF    = "ETF"
	InstrumentTypeOption = "OPTION"
)

// User represents a registered user
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is a trading account holding cash and aggregate equity.
// Equity tracks cash 1:1 at fill time; the mark-to-market job folds in
// position market value afterwards.
type Account struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Type        string          `json:"type"` // "PAPER" or "LIVE"
	Currency    string          `json:"currency"`
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	MarginUsed  decimal.Decimal `json:"margin_used"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Instrument is a read-only catalog entry for something tradeable
type Instrument struct {
	ID          uuid.UUID           `json:"id"`
	Symbol      string              `json:"symbol"`
	Name        string              `json:"name"`
	Type        string              `json:"type"` // "STOCK", "ETF" or "OPTION"
	StrikePrice decimal.NullDecimal `json:"strike_price,omitempty"`
	ExpiryDate  *time.Time          `json:"expiry_date,omitempty"`
	OptionType  *string             `json:"option_type,omitempty"` // "CALL" or "PUT"
	CreatedAt   time.Time           `json:"created_at"`
}

// Order is a request to trade a quantity of one instrument on one account
type Order struct {
	ID             uuid.UUID           `json:"id"`
	AccountID      uuid.UUID           `json:"account_id"`
	InstrumentID   uuid.UUID           `json:"instrument_id"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	Quantity       decimal.Decimal     `json:"quantity"`
	LimitPrice     decimal.NullDecimal `json:"limit_price,omitempty"`
	StopPrice      decimal.NullDecimal `json:"stop_price,omitempty"`
	Status         string              `json:"status"`
	FilledQuantity decimal.Decimal     `json:"filled_quantity"`
	AvgFillPrice   decimal.NullDecimal `json:"avg_fill_price,omitempty"`
	PlacedAt       time.Time           `json:"placed_at"`
	FilledAt       *time.Time          `json:"filled_at,omitempty"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
}

// Position is the net holding of one instrument within one account.
// At most one position exists per (account, instrument) pair, and a
// position with zero quantity is deleted rather than stored.
type Position struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	InstrumentID  uuid.UUID       `json:"instrument_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	OpenedAt      time.Time       `json:"opened_at"`
}

// Quote is a point-in-time price for a symbol. bid <= ask is not
// guaranteed and is never validated.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Candle is one OHLC bar for charting
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}
