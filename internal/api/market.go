package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// GetQuote returns the current quote for a symbol
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if _, err := h.DB.GetInstrumentBySymbol(r.Context(), symbol); err != nil {
		writeError(w, http.StatusNotFound, "Instrument not found")
		return
	}

	quote, err := h.Market.GetQuote(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Quote unavailable")
		return
	}
	json.NewEncoder(w).Encode(quote)
}

// GetHistory returns daily OHLC bars for charting; ?days=N, default 30
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if _, err := h.DB.GetInstrumentBySymbol(r.Context(), symbol); err != nil {
		writeError(w, http.StatusNotFound, "Instrument not found")
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = n
	}

	bars, err := h.Market.History(r.Context(), symbol, days)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "History unavailable")
		return
	}
	json.NewEncoder(w).Encode(bars)
}

// SearchInstruments searches the catalog; ?q=query&type=STOCK
func (h *Handler) SearchInstruments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q required")
		return
	}

	instruments, err := h.DB.SearchInstruments(r.Context(), query, r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search instruments")
		return
	}
	json.NewEncoder(w).Encode(instruments)
}
