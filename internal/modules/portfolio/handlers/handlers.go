// Package handlers provides HTTP handlers for portfolio lots and trades.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/portfolio"
	"github.com/aristath/riskflow/internal/server/response"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	ledger *portfolio.Ledger
	log    zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(ledger *portfolio.Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		log:    log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetPositions handles GET /api/portfolios/{id}/positions
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request, portfolioID string) {
	positions, err := h.ledger.Positions(r.Context(), portfolioID)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"positions":    positions,
	})
}

// HandleGetLots handles GET /api/portfolios/{id}/lots
func (h *Handler) HandleGetLots(w http.ResponseWriter, r *http.Request, portfolioID string) {
	lots, err := h.ledger.Lots(r.Context(), portfolioID, r.URL.Query().Get("symbol"))
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"lots":         lots,
	})
}

// HandleExecuteTrade handles POST /api/portfolios/{id}/trades
func (h *Handler) HandleExecuteTrade(w http.ResponseWriter, r *http.Request, portfolioID string) {
	var trade portfolio.Trade
	if err := json.NewDecoder(r.Body).Decode(&trade); err != nil {
		response.Error(w, h.log, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	trade.PortfolioID = portfolioID

	execution, err := h.ledger.Execute(r.Context(), trade)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusCreated, execution)
}
