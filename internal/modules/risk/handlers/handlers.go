// Package handlers provides HTTP handlers for risk computations.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/risk"
	"github.com/aristath/riskflow/internal/server/response"
	"github.com/rs/zerolog"
)

// DefaultConfidence is used when a DaR request names no confidence level
const DefaultConfidence = 0.95

// BetaProvider returns the factor betas of a security at a pack
type BetaProvider interface {
	Betas(ctx context.Context, symbol, packID string) (*domain.FactorBeta, error)
}

// ExposureCalculator computes a portfolio's factor exposure at a pack
type ExposureCalculator interface {
	Exposure(ctx context.Context, portfolioID, packID string, base domain.Currency) (*domain.PortfolioExposure, error)
}

// AttributionCalculator attributes a portfolio's return between two packs
type AttributionCalculator interface {
	Attribute(ctx context.Context, portfolioID, startPackID, endPackID string, base domain.Currency) (*domain.CurrencyAttributionResult, error)
}

// ScenarioSource looks up named scenarios
type ScenarioSource interface {
	Get(name string) (risk.Scenario, error)
	Names() []string
}

// Handler handles risk HTTP requests
type Handler struct {
	betas       BetaProvider
	exposure    ExposureCalculator
	attribution AttributionCalculator
	scenarios   ScenarioSource
	defaultBase domain.Currency
	log         zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(
	betas BetaProvider,
	exposure ExposureCalculator,
	attribution AttributionCalculator,
	scenarios ScenarioSource,
	defaultBase domain.Currency,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		betas:       betas,
		exposure:    exposure,
		attribution: attribution,
		scenarios:   scenarios,
		defaultBase: defaultBase,
		log:         log.With().Str("handler", "risk").Logger(),
	}
}

// HandleListScenarios handles GET /api/risk/scenarios
func (h *Handler) HandleListScenarios(w http.ResponseWriter, r *http.Request) {
	names := h.scenarios.Names()
	scenarios := make([]risk.Scenario, 0, len(names))
	for _, name := range names {
		scenario, err := h.scenarios.Get(name)
		if err != nil {
			response.Error(w, h.log, err)
			return
		}
		scenarios = append(scenarios, scenario)
	}
	response.JSON(w, h.log, http.StatusOK, map[string]interface{}{
		"scenarios": scenarios,
		"count":     len(scenarios),
	})
}

// HandleGetScenario handles GET /api/risk/scenarios/{name}
func (h *Handler) HandleGetScenario(w http.ResponseWriter, r *http.Request, name string) {
	scenario, err := h.scenarios.Get(name)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, scenario)
}

// HandleGetBetas handles GET /api/risk/securities/{symbol}/betas?pack_id=
func (h *Handler) HandleGetBetas(w http.ResponseWriter, r *http.Request, symbol string) {
	packID, err := requirePackID(r, "pack_id")
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	beta, err := h.betas.Betas(r.Context(), symbol, packID)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, beta)
}

// HandleGetExposure handles GET /api/risk/portfolios/{id}/exposure?pack_id=&base=
func (h *Handler) HandleGetExposure(w http.ResponseWriter, r *http.Request, portfolioID string) {
	packID, err := requirePackID(r, "pack_id")
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	exposure, err := h.exposure.Exposure(r.Context(), portfolioID, packID, h.base(r))
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, exposure)
}

// HandleGetDaR handles GET /api/risk/portfolios/{id}/dar?pack_id=&scenario=&confidence=&base=
func (h *Handler) HandleGetDaR(w http.ResponseWriter, r *http.Request, portfolioID string) {
	packID, err := requirePackID(r, "pack_id")
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	name := r.URL.Query().Get("scenario")
	if name == "" {
		response.Error(w, h.log, &domain.ValidationError{Field: "scenario", Reason: "is required"})
		return
	}
	scenario, err := h.scenarios.Get(name)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	confidence := DefaultConfidence
	if raw := r.URL.Query().Get("confidence"); raw != "" {
		confidence, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(w, h.log, &domain.ValidationError{Field: "confidence", Reason: "must be a number"})
			return
		}
	}

	exposure, err := h.exposure.Exposure(r.Context(), portfolioID, packID, h.base(r))
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	result, err := risk.ComputeDaR(exposure, scenario, confidence)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, result)
}

// HandleGetAttribution handles GET /api/risk/portfolios/{id}/attribution?start_pack_id=&pack_id=&base=
func (h *Handler) HandleGetAttribution(w http.ResponseWriter, r *http.Request, portfolioID string) {
	startPackID, err := requirePackID(r, "start_pack_id")
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	packID, err := requirePackID(r, "pack_id")
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	result, err := h.attribution.Attribute(r.Context(), portfolioID, startPackID, packID, h.base(r))
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, h.log, http.StatusOK, result)
}

func (h *Handler) base(r *http.Request) domain.Currency {
	if base := r.URL.Query().Get("base"); base != "" {
		return domain.Currency(base)
	}
	return h.defaultBase
}

// requirePackID reads a mandatory pack id parameter. Relative placeholders are rejected
// downstream by the pricing service.
func requirePackID(r *http.Request, param string) (string, error) {
	packID := r.URL.Query().Get(param)
	if packID == "" {
		return "", &domain.ValidationError{Field: param, Reason: "is required"}
	}
	return packID, nil
}
