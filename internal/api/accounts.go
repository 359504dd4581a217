package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// CreateAccount opens a trading account for the user. PAPER accounts
// start with the configured initial balance.
func (h *Handler) CreateAccount(initialBalance decimal.Decimal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req struct {
			Type     string `json:"type"`
			Currency string `json:"currency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Type == "" {
			req.Type = models.AccountTypePaper
		}
		if req.Type != models.AccountTypePaper && req.Type != models.AccountTypeLive {
			writeError(w, http.StatusBadRequest, "Type must be PAPER or LIVE")
			return
		}
		if req.Currency == "" {
			req.Currency = "USD"
		}

		account, err := h.DB.CreateAccount(r.Context(), uid, req.Type, req.Currency, initialBalance)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create account")
			return
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(account)
	}
}

// GetUserAccounts lists the user's accounts
func (h *Handler) GetUserAccounts(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	accounts, err := h.DB.GetUserAccounts(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve accounts")
		return
	}
	json.NewEncoder(w).Encode(accounts)
}

// GetAccountSummary returns the account with aggregated P&L and its
// open positions
func (h *Handler) GetAccountSummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	if _, err := h.DB.GetUserAccount(r.Context(), accountID, uid); err != nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	summary, err := h.DB.GetAccountSummary(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve summary")
		return
	}
	json.NewEncoder(w).Encode(summary)
}

// GetPortfolio lists the account's open positions
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	if _, err := h.DB.GetUserAccount(r.Context(), accountID, uid); err != nil {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	positions, err := h.DB.GetPositions(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve positions")
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}
	json.NewEncoder(w).Encode(positions)
}
