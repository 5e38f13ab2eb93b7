// Package handlers provides HTTP handlers for pricing pack inspection.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/server/response"
	"github.com/rs/zerolog"
)

// PackService is the subset of the pricing service the handlers need
type PackService interface {
	GetPack(ctx context.Context, packID string) (*domain.Pack, error)
	GetLatestPack(ctx context.Context) (*domain.Pack, error)
	RequireFresh(pack *domain.Pack) (*domain.Pack, error)
	PriceWithCurrency(ctx context.Context, symbol, packID string) (float64, domain.Currency, error)
	List(ctx context.Context, limit int) ([]domain.Pack, error)
}

// Handler handles pricing pack HTTP requests
type Handler struct {
	service PackService
	log     zerolog.Logger
}

// NewHandler creates a new pricing pack handler
func NewHandler(service PackService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "pricing").Logger(),
	}
}

// HandleListPacks handles GET /api/packs
func (h *Handler) HandleListPacks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(w, h.log, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = parsed
	}

	packs, err := h.service.List(r.Context(), limit)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, map[string]interface{}{
		"packs": packs,
		"count": len(packs),
	})
}

// HandleGetLatestPack handles GET /api/packs/latest
func (h *Handler) HandleGetLatestPack(w http.ResponseWriter, r *http.Request) {
	pack, err := h.service.GetLatestPack(r.Context())
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	h.respondPack(w, r, pack)
}

// HandleGetPack handles GET /api/packs/{id}
func (h *Handler) HandleGetPack(w http.ResponseWriter, r *http.Request, packID string) {
	pack, err := h.service.GetPack(r.Context(), packID)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	h.respondPack(w, r, pack)
}

// HandleGetPrice handles GET /api/packs/{id}/prices/{symbol}
func (h *Handler) HandleGetPrice(w http.ResponseWriter, r *http.Request, packID, symbol string) {
	price, currency, err := h.service.PriceWithCurrency(r.Context(), symbol, packID)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, map[string]interface{}{
		"pack_id":  packID,
		"symbol":   symbol,
		"price":    price,
		"currency": currency,
	})
}

// respondPack applies the optional ?fresh=true freshness requirement
func (h *Handler) respondPack(w http.ResponseWriter, r *http.Request, pack *domain.Pack) {
	if fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh")); fresh {
		if _, err := h.service.RequireFresh(pack); err != nil {
			response.Error(w, h.log, err)
			return
		}
	}
	response.JSON(w, h.log, http.StatusOK, pack)
}
