package trading

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

type posKey struct {
	account    uuid.UUID
	instrument uuid.UUID
}

type fakeState struct {
	orders      map[uuid.UUID]models.Order
	accounts    map[uuid.UUID]models.Account
	instruments map[uuid.UUID]models.Instrument
	positions   map[posKey]models.Position
}

func (s *fakeState) clone() *fakeState {
	cp := &fakeState{
		orders:      make(map[uuid.UUID]models.Order, len(s.orders)),
		accounts:    make(map[uuid.UUID]models.Account, len(s.accounts)),
		instruments: make(map[uuid.UUID]models.Instrument, len(s.instruments)),
		positions:   make(map[posKey]models.Position, len(s.positions)),
	}
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	for k, v := range s.accounts {
		cp.accounts[k] = v
	}
	for k, v := range s.instruments {
		cp.instruments[k] = v
	}
	for k, v := range s.positions {
		cp.positions[k] = v
	}
	return cp
}

// fakeStore keeps everything in memory with transaction semantics: fn
// runs against a staged copy that only replaces the live state when fn
// succeeds.
type fakeStore struct {
	state        *fakeState
	failBalances bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: &fakeState{
		orders:      make(map[uuid.UUID]models.Order),
		accounts:    make(map[uuid.UUID]models.Account),
		instruments: make(map[uuid.UUID]models.Instrument),
		positions:   make(map[posKey]models.Position),
	}}
}

func (f *fakeStore) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s not found", id)
	}
	return &order, nil
}

func (f *fakeStore) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	acct, ok := f.state.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s not found", id)
	}
	return &acct, nil
}

func (f *fakeStore) GetInstrument(_ context.Context, id uuid.UUID) (*models.Instrument, error) {
	inst, ok := f.state.instruments[id]
	if !ok {
		return nil, fmt.Errorf("instrument %s not found", id)
	}
	return &inst, nil
}

func (f *fakeStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	staged := f.state.clone()
	if err := fn(&fakeTx{state: staged, failBalances: f.failBalances}); err != nil {
		return err
	}
	f.state = staged
	return nil
}

type fakeTx struct {
	state        *fakeState
	failBalances bool
}

func (t *fakeTx) OrderForUpdate(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := t.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s not found", id)
	}
	return &order, nil
}

func (t *fakeTx) AccountForUpdate(_ context.Context, id uuid.UUID) (*models.Account, error) {
	acct, ok := t.state.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s not found", id)
	}
	return &acct, nil
}

func (t *fakeTx) PositionForUpdate(_ context.Context, accountID, instrumentID uuid.UUID) (*models.Position, error) {
	pos, ok := t.state.positions[posKey{accountID, instrumentID}]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

func (t *fakeTx) SavePosition(_ context.Context, pos *models.Position) error {
	if pos.ID == uuid.Nil {
		pos.ID = uuid.New()
	}
	t.state.positions[posKey{pos.AccountID, pos.InstrumentID}] = *pos
	return nil
}

func (t *fakeTx) DeletePosition(_ context.Context, accountID, instrumentID uuid.UUID) error {
	delete(t.state.positions, posKey{accountID, instrumentID})
	return nil
}

func (t *fakeTx) UpdateAccountBalances(_ context.Context, id uuid.UUID, cash, equity, realizedPnl decimal.Decimal) error {
	if t.failBalances {
		return fmt.Errorf("account write failed")
	}
	acct := t.state.accounts[id]
	acct.Cash = cash
	acct.Equity = equity
	acct.RealizedPnl = realizedPnl
	t.state.accounts[id] = acct
	return nil
}

func (t *fakeTx) MarkOrderFilled(_ context.Context, id uuid.UUID, quantity, price decimal.Decimal, at time.Time) error {
	order := t.state.orders[id]
	order.Status = models.OrderStatusFilled
	order.FilledQuantity = quantity
	order.AvgFillPrice = decimal.NewNullDecimal(price)
	order.FilledAt = &at
	t.state.orders[id] = order
	return nil
}

func (t *fakeTx) MarkOrderRejected(_ context.Context, id uuid.UUID, at time.Time) error {
	order := t.state.orders[id]
	order.Status = models.OrderStatusRejected
	order.CancelledAt = &at
	t.state.orders[id] = order
	return nil
}

type fakeQuotes struct {
	quotes map[string]models.Quote
	err    error
}

func (f *fakeQuotes) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	if f.err != nil {
		return models.Quote{}, f.err
	}
	quote, ok := f.quotes[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return quote, nil
}

// fixture wires a paper account holding 100000 USD and an AAPL catalog
// entry against a fake store and quote source.
type fixture struct {
	store      *fakeStore
	quotes     *fakeQuotes
	engine     *Engine
	account    uuid.UUID
	instrument uuid.UUID
}

func newFixture() *fixture {
	store := newFakeStore()
	accountID := uuid.New()
	instrumentID := uuid.New()

	store.state.accounts[accountID] = models.Account{
		ID:     accountID,
		Type:   models.AccountTypePaper,
		Cash:   dec("100000"),
		Equity: dec("100000"),
	}
	store.state.instruments[instrumentID] = models.Instrument{
		ID:     instrumentID,
		Symbol: "AAPL",
		Type:   models.InstrumentTypeStock,
	}

	quotes := &fakeQuotes{quotes: map[string]models.Quote{}}
	return &fixture{
		store:      store,
		quotes:     quotes,
		engine:     NewEngine(store, quotes),
		account:    accountID,
		instrument: instrumentID,
	}
}

func (f *fixture) setQuote(bid, ask string) {
	f.quotes.quotes["AAPL"] = models.Quote{
		Symbol: "AAPL",
		Bid:    dec(bid),
		Ask:    dec(ask),
		Last:   dec(bid),
	}
}

func (f *fixture) addOrder(side, orderType, quantity string) uuid.UUID {
	id := uuid.New()
	f.store.state.orders[id] = models.Order{
		ID:           id,
		AccountID:    f.account,
		InstrumentID: f.instrument,
		Side:         side,
		Type:         orderType,
		Quantity:     dec(quantity),
		Status:       models.OrderStatusPending,
	}
	return id
}

func (f *fixture) addPosition(quantity, avgPrice string) {
	f.store.state.positions[posKey{f.account, f.instrument}] = models.Position{
		ID:           uuid.New(),
		AccountID:    f.account,
		InstrumentID: f.instrument,
		Quantity:     dec(quantity),
		AvgPrice:     dec(avgPrice),
	}
}

func (f *fixture) position() (models.Position, bool) {
	pos, ok := f.store.state.positions[posKey{f.account, f.instrument}]
	return pos, ok
}

func TestEngine_Execute_MarketBuy(t *testing.T) {
	f := newFixture()
	f.setQuote("49.99", "50.00")
	orderID := f.addOrder(models.SideBuy, models.OrderTypeMarket, "10")

	result, err := f.engine.Execute(context.Background(), orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != models.OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", result.Status)
	}
	if !result.FillPrice.Equal(dec("50.00")) {
		t.Errorf("expected fill at 50.00 (ask), got %s", result.FillPrice)
	}

	pos, ok := f.position()
	if !ok {
		t.Fatal("expected a position to be created")
	}
	if !pos.Quantity.Equal(dec("10")) || !pos.AvgPrice.Equal(dec("50.00")) {
		t.Errorf("expected position 10 @ 50.00, got %s @ %s", pos.Quantity, pos.AvgPrice)
	}

	acct := f.store.state.accounts[f.account]
	if !acct.Cash.Equal(dec("99500")) {
		t.Errorf("expected cash 99500, got %s", acct.Cash)
	}
	if !acct.Equity.Equal(dec("99500")) {
		t.Errorf("expected equity 99500, got %s", acct.Equity)
	}

	order := f.store.state.orders[orderID]
	if order.Status != models.OrderStatusFilled {
		t.Errorf("expected order FILLED, got %s", order.Status)
	}
	if !order.FilledQuantity.Equal(dec("10")) {
		t.Errorf("expected filled quantity 10, got %s", order.FilledQuantity)
	}
	if !order.AvgFillPrice.Valid || !order.AvgFillPrice.Decimal.Equal(dec("50.00")) {
		t.Errorf("expected avg fill price 50.00, got %v", order.AvgFillPrice)
	}
	if order.FilledAt == nil {
		t.Error("expected filled_at to be set")
	}
}

func TestEngine_Execute_RepeatedBuysBlendAverage(t *testing.T) {
	f := newFixture()

	f.setQuote("49.99", "50.00")
	first := f.addOrder(models.SideBuy, models.OrderTypeMarket, "10")
	if _, err := f.engine.Execute(context.Background(), first); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}

	f.setQuote("59.99", "60.00")
	second := f.addOrder(models.SideBuy, models.OrderTypeMarket, "10")
	if _, err := f.engine.Execute(context.Background(), second); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	pos, ok := f.position()
	if !ok {
		t.Fatal("expected a position")
	}
	if !pos.Quantity.Equal(dec("20")) {
		t.Errorf("expected quantity 20, got %s", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(dec("55")) {
		t.Errorf("expected avg price 55, got %s", pos.AvgPrice)
	}
}

func TestEngine_Execute_SellClosesPosition(t *testing.T) {
	f := newFixture()
	f.addPosition("20", "55.00")
	f.setQuote("70.00", "70.02")
	orderID := f.addOrder(models.SideSell, models.OrderTypeMarket, "20")

	result, err := f.engine.Execute(context.Background(), orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.FillPrice.Equal(dec("70.00")) {
		t.Errorf("expected fill at 70.00 (bid), got %s", result.FillPrice)
	}
	// (70 - 55) * 20 = 300
	if !result.RealizedPnl.Equal(dec("300")) {
		t.Errorf("expected realized 300, got %s", result.RealizedPnl)
	}

	if _, ok := f.position(); ok {
		t.Error("expected position to be deleted")
	}

	acct := f.store.state.accounts[f.account]
	if !acct.Cash.Equal(dec("101400")) {
		t.Errorf("expected cash 101400, got %s", acct.Cash)
	}
	if !acct.RealizedPnl.Equal(dec("300")) {
		t.Errorf("expected account realized 300, got %s", acct.RealizedPnl)
	}
}

func TestEngine_Execute_LimitFillsAtLimitPrice(t *testing.T) {
	f := newFixture()
	f.setQuote("49.99", "50.00")
	orderID := f.addOrder(models.SideBuy, models.OrderTypeLimit, "10")
	order := f.store.state.orders[orderID]
	order.LimitPrice = decimal.NewNullDecimal(dec("45.00"))
	f.store.state.orders[orderID] = order

	result, err := f.engine.Execute(context.Background(), orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Fills at the limit even though the market is at 50.
	if !result.FillPrice.Equal(dec("45.00")) {
		t.Errorf("expected fill at 45.00, got %s", result.FillPrice)
	}
}

func TestEngine_Execute_RejectsStopOrders(t *testing.T) {
	f := newFixture()
	f.setQuote("49.99", "50.00")
	orderID := f.addOrder(models.SideBuy, models.OrderTypeStop, "10")

	_, err := f.engine.Execute(context.Background(), orderID)
	if !errors.Is(err, ErrUnsupportedOrderType) {
		t.Fatalf("expected ErrUnsupportedOrderType, got %v", err)
	}

	order := f.store.state.orders[orderID]
	if order.Status != models.OrderStatusPending {
		t.Errorf("expected order to stay PENDING, got %s", order.Status)
	}
	acct := f.store.state.accounts[f.account]
	if !acct.Cash.Equal(dec("100000")) {
		t.Errorf("expected cash untouched, got %s", acct.Cash)
	}
}

func TestEngine_Execute_RejectsLiveAccounts(t *testing.T) {
	f := newFixture()
	f.setQuote("49.99", "50.00")
	acct := f.store.state.accounts[f.account]
	acct.Type = models.AccountTypeLive
	f.store.state.accounts[f.account] = acct
	orderID := f.addOrder(models.SideBuy, models.OrderTypeMarket, "10")

	_, err := f.engine.Execute(context.Background(), orderID)
	if !errors.Is(err, ErrUnsupportedAccountType) {
		t.Fatalf("expected ErrUnsupportedAccountType, got %v", err)
	}
}

func TestEngine_Execute_RejectsOversell(t *testing.T) {
	tests := []struct {
		name    string
		held    string // empty means no position
		sellQty string
	}{
		{name: "NoPosition", held: "", sellQty: "5"},
		{name: "MoreThanHeld", held: "3", sellQty: "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.setQuote("49.99", "50.00")
			if tt.held != "" {
				f.addPosition(tt.held, "40.00")
			}
			orderID := f.addOrder(models.SideSell, models.OrderTypeMarket, tt.sellQty)

			_, err := f.engine.Execute(context.Background(), orderID)
			if !errors.Is(err, ErrInsufficientPosition) {
				t.Fatalf("expected ErrInsufficientPosition, got %v", err)
			}

			// No ledger mutation of any kind
			order := f.store.state.orders[orderID]
			if order.Status != models.OrderStatusPending {
				t.Errorf("expected order PENDING, got %s", order.Status)
			}
			acct := f.store.state.accounts[f.account]
			if !acct.Cash.Equal(dec("100000")) {
				t.Errorf("expected cash untouched, got %s", acct.Cash)
			}
			if tt.held != "" {
				pos, ok := f.position()
				if !ok || !pos.Quantity.Equal(dec(tt.held)) {
					t.Errorf("expected position untouched at %s", tt.held)
				}
			}
		})
	}
}

func TestEngine_Execute_AtMostOnce(t *testing.T) {
	f := newFixture()
	f.setQuote("49.99", "50.00")
	orderID := f.addOrder(models.SideBuy, models.OrderTypeMarket, "10")

	if _, err := f.engine.Execute(context.Background(), orderID); err != nil {
		t.Fatalf("first execute failed: %v", err)
	}

	_, err := f.engine.Execute(context.Background(), orderID)
	if !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState on second execute, got %v", err)
	}

	// Effects applied exactly once
	acct := f.store.state.accounts[f.account]
	if !acct.Cash.Equal(dec("99500")) {
		t.Errorf("expected cash 99500 after single fill, got %s", acct.Cash)
	}
	pos, _ := f.position()
	if !pos.Quantity.Equal(dec("10")) {
		t.Errorf("expected quantity 10 after single fill, got %s", pos.Quantity)
	}
}

func TestEngine_Execute_AtomicRollback(t *testing.T) {
	f := newFixture()
	f.addPosition("20", "55.00")
	f.setQuote("70.00", "70.02")
	f.store.failBalances = true
	orderID := f.addOrder(models.SideSell, models.OrderTypeMarket, "20")

	_, err := f.engine.Execute(context.Background(), orderID)
	if err == nil {
		t.Fatal("expected error from failing account write")
	}

	// The position change computed before the failing write must not
	// survive.
	pos, ok := f.position()
	if !ok {
		t.Fatal("expected position to remain after rollback")
	}
	if !pos.Quantity.Equal(dec("20")) || !pos.AvgPrice.Equal(dec("55.00")) {
		t.Errorf("expected position 20 @ 55.00 after rollback, got %s @ %s", pos.Quantity, pos.AvgPrice)
	}
	order := f.store.state.orders[orderID]
	if order.Status != models.OrderStatusPending {
		t.Errorf("expected order PENDING after rollback, got %s", order.Status)
	}
	acct := f.store.state.accounts[f.account]
	if !acct.Cash.Equal(dec("100000")) {
		t.Errorf("expected cash untouched after rollback, got %s", acct.Cash)
	}
}

func TestEngine_Execute_QuoteUnavailable(t *testing.T) {
	f := newFixture()
	f.quotes.err = fmt.Errorf("provider down")
	orderID := f.addOrder(models.SideBuy, models.OrderTypeMarket, "10")

	_, err := f.engine.Execute(context.Background(), orderID)
	if !errors.Is(err, ErrQuoteUnavailable) {
		t.Fatalf("expected ErrQuoteUnavailable, got %v", err)
	}

	order := f.store.state.orders[orderID]
	if order.Status != models.OrderStatusPending {
		t.Errorf("expected order PENDING, got %s", order.Status)
	}
}

func TestEngine_Reject(t *testing.T) {
	f := newFixture()
	orderID := f.addOrder(models.SideBuy, models.OrderTypeStop, "10")

	if err := f.engine.Reject(context.Background(), orderID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := f.store.state.orders[orderID]
	if order.Status != models.OrderStatusRejected {
		t.Errorf("expected REJECTED, got %s", order.Status)
	}

	// Terminal: a second reject fails
	if err := f.engine.Reject(context.Background(), orderID); !errors.Is(err, ErrInvalidOrderState) {
		t.Errorf("expected ErrInvalidOrderState, got %v", err)
	}
}
