package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/logger"
	"papertrade/internal/models"
	"papertrade/internal/trading"
)

type placeOrderRequest struct {
	AccountID    uuid.UUID        `json:"account_id"`
	InstrumentID uuid.UUID        `json:"instrument_id"`
	Side         string           `json:"side"`
	Type         string           `json:"type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice    *decimal.Decimal `json:"stop_price,omitempty"`
}

// PlaceOrder creates a PENDING order and hands it to the execution
// engine. PAPER accounts fill immediately; LIVE accounts are not routed
// anywhere yet.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Side != models.SideBuy && req.Side != models.SideSell {
		writeError(w, http.StatusBadRequest, "Side must be BUY or SELL")
		return
	}
	switch req.Type {
	case models.OrderTypeMarket, models.OrderTypeLimit, models.OrderTypeStop, models.OrderTypeStopLimit:
	default:
		writeError(w, http.StatusBadRequest, "Unknown order type")
		return
	}
	if !req.Quantity.IsPositive() {
		writeError(w, http.StatusBadRequest, "Quantity must be positive")
		return
	}
	needsLimit := req.Type == models.OrderTypeLimit || req.Type == models.OrderTypeStopLimit
	if needsLimit && (req.LimitPrice == nil || !req.LimitPrice.IsPositive()) {
		writeError(w, http.StatusBadRequest, "Limit price required for this order type")
		return
	}

	// Verify account ownership
	account, err := h.DB.GetUserAccount(r.Context(), req.AccountID, uid)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}
	if _, err := h.DB.GetInstrument(r.Context(), req.InstrumentID); err != nil {
		writeError(w, http.StatusNotFound, "Instrument not found")
		return
	}

	order := &models.Order{
		AccountID:    req.AccountID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Type:         req.Type,
		Quantity:     req.Quantity,
	}
	if req.LimitPrice != nil {
		order.LimitPrice = decimal.NewNullDecimal(*req.LimitPrice)
	}
	if req.StopPrice != nil {
		order.StopPrice = decimal.NewNullDecimal(*req.StopPrice)
	}

	created, err := h.DB.CreateOrder(r.Context(), order)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}

	if account.Type != models.AccountTypePaper {
		writeError(w, http.StatusBadRequest, "Live trading not yet implemented")
		return
	}

	result, err := h.Engine.Execute(r.Context(), created.ID)
	if err != nil {
		h.rejectFailedOrder(r, created.ID, err)
		status, msg := executionError(err)
		writeError(w, status, msg)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"order_id":        result.OrderID,
		"status":          result.Status,
		"fill_price":      result.FillPrice,
		"filled_quantity": result.FilledQuantity,
	})
}

// rejectFailedOrder marks the order REJECTED when the failure is
// deterministic. Quote outages leave the order PENDING so the caller
// can retry.
func (h *Handler) rejectFailedOrder(r *http.Request, orderID uuid.UUID, execErr error) {
	if errors.Is(execErr, trading.ErrQuoteUnavailable) || errors.Is(execErr, trading.ErrInvalidOrderState) {
		return
	}
	if err := h.Engine.Reject(r.Context(), orderID); err != nil {
		logger.Errorf("failed to reject order %s: %v", orderID, err)
	}
}

// executionError maps engine errors to HTTP responses
func executionError(err error) (int, string) {
	switch {
	case errors.Is(err, trading.ErrInvalidOrderState):
		return http.StatusConflict, "Order is not executable in its current state"
	case errors.Is(err, trading.ErrUnsupportedOrderType):
		return http.StatusBadRequest, "Stop orders are not yet supported"
	case errors.Is(err, trading.ErrUnsupportedAccountType):
		return http.StatusBadRequest, "Live trading not yet implemented"
	case errors.Is(err, trading.ErrInsufficientPosition):
		return http.StatusBadRequest, "Insufficient position for sell"
	case errors.Is(err, trading.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable, "Quote unavailable, try again"
	default:
		return http.StatusInternalServerError, "Failed to execute order"
	}
}

// GetUserOrders retrieves the user's orders, optionally filtered by
// account_id and status query params
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var accountID *uuid.UUID
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid account ID")
			return
		}
		accountID = &id
	}
	status := r.URL.Query().Get("status")

	orders, err := h.DB.ListUserOrders(r.Context(), uid, accountID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve orders")
		return
	}
	json.NewEncoder(w).Encode(orders)
}

// GetOrder retrieves one of the user's orders
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.DB.GetUserOrder(r.Context(), orderID, uid)
	if err != nil {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	json.NewEncoder(w).Encode(order)
}

// CancelOrder cancels a PENDING or OPEN order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := h.DB.CancelOrder(r.Context(), orderID, uid); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to cancel order: "+err.Error())
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Order cancelled"})
}
