// Package handlers provides HTTP handlers for currency operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/merchantpos/paysync/internal/modules/currency"
)

// RateService is the subset of currency.Service used by the handlers
type RateService interface {
	ConvertToUSD(ctx context.Context, source string, amount decimal.Decimal) (decimal.Decimal, error)
	Rates(ctx context.Context, cur string) (map[string]float64, error)
}

// Handler handles currency HTTP requests
type Handler struct {
	service RateService
	log     zerolog.Logger
}

// NewHandler creates a new currency handler
func NewHandler(service RateService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "currency").Logger(),
	}
}

// HandleConvert handles GET /api/currency/convert?from=EUR&amount=12.50
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		h.writeError(w, http.StatusBadRequest, "from is required")
		return
	}

	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	usd, err := h.service.ConvertToUSD(r.Context(), from, amount)
	if err != nil {
		if errors.Is(err, currency.ErrConversionUnavailable) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Error().Err(err).Str("from", from).Msg("Conversion failed")
		h.writeError(w, http.StatusInternalServerError, "conversion failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"from_currency": from,
			"to_currency":   currency.USD,
			"from_amount":   amount.String(),
			"to_amount":     usd.StringFixed(2),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetRates handles GET /api/currency/rates/{currency}
func (h *Handler) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	cur := chi.URLParam(r, "currency")

	rates, err := h.service.Rates(r.Context(), cur)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"currency": cur,
			"rates":    rates,
			"count":    len(rates),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
