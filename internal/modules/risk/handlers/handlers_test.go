package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/modules/risk"
	testingpkg "github.com/aristath/riskflow/internal/testing"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDoc = `
scenarios:
  - name: real_rate_up_100
    shocks:
      real_rate: 100
`

func newRouter(t *testing.T) *chi.Mux {
	t.Helper()

	packs := testingpkg.NewMockPackReader()
	securities := testingpkg.SeedReferencePack(packs, 120)
	holdings := testingpkg.NewMockHoldingsProvider()
	positions := make([]domain.Holding, 0, len(securities))
	for _, sec := range securities {
		positions = append(positions, sec.Holding())
	}
	holdings.SetHoldings("main", positions)

	log := zerolog.Nop()
	betas := risk.NewBetaService(packs, graph.NewMemoryStore(utils.NewSequence(0)), risk.BetaConfig{Window: 252, MinObservations: 60}, log)
	scenarios, err := risk.LoadScenarios(validation.New(), []byte(scenarioDoc))
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHandler(
		betas,
		risk.NewExposureService(packs, holdings, betas, log),
		risk.NewAttributionService(packs, holdings, risk.BasisPoint, log),
		scenarios,
		domain.CurrencyUSD,
		log,
	).RegisterRoutes(router)
	return router
}

func serve(t *testing.T, router *chi.Mux, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHandleGetDaR(t *testing.T) {
	router := newRouter(t)

	w, body := serve(t, router, "/risk/portfolios/main/dar?pack_id="+testingpkg.ReferencePackID+"&scenario=real_rate_up_100")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.InDelta(t, -64.75, data["delta_nav"].(float64), 1e-6)
	assert.Equal(t, 0.95, data["confidence"])
	assert.Equal(t, risk.DaRMethod, data["method"])
}

func TestHandleGetExposure(t *testing.T) {
	router := newRouter(t)

	w, body := serve(t, router, "/risk/portfolios/main/exposure?pack_id="+testingpkg.ReferencePackID)

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.InDelta(t, 3650.0, data["nav"].(float64), 1e-9)
	assert.Equal(t, "USD", data["base_currency"])
}

func TestHandleGetBetas(t *testing.T) {
	router := newRouter(t)

	w, body := serve(t, router, "/risk/securities/AAPL/betas?pack_id="+testingpkg.ReferencePackID)

	require.Equal(t, http.StatusOK, w.Code)
	betas := body["data"].(map[string]interface{})["betas"].(map[string]interface{})
	assert.InDelta(t, -2.0, betas["real_rate"].(float64), 1e-8)
}

func TestHandleScenarios(t *testing.T) {
	router := newRouter(t)

	w, body := serve(t, router, "/risk/scenarios")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["count"])

	w, _ = serve(t, router, "/risk/scenarios/real_rate_up_100")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlerErrors(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name   string
		target string
		status int
		kind   string
	}{
		{"missing pack id", "/risk/portfolios/main/exposure", http.StatusBadRequest, "validation"},
		{"missing scenario", "/risk/portfolios/main/dar?pack_id=" + testingpkg.ReferencePackID, http.StatusBadRequest, "validation"},
		{"unknown scenario", "/risk/portfolios/main/dar?pack_id=" + testingpkg.ReferencePackID + "&scenario=nope", http.StatusNotFound, "not_found"},
		{"bad confidence", "/risk/portfolios/main/dar?pack_id=" + testingpkg.ReferencePackID + "&scenario=real_rate_up_100&confidence=2", http.StatusBadRequest, "validation"},
		{"unknown pack", "/risk/securities/AAPL/betas?pack_id=PP_20240116_7", http.StatusNotFound, "not_found"},
		{"unknown series", "/risk/securities/MSFT/betas?pack_id=" + testingpkg.ReferencePackID, http.StatusUnprocessableEntity, "computation"},
		{"attribution needs start pack", "/risk/portfolios/main/attribution?pack_id=" + testingpkg.ReferencePackID, http.StatusBadRequest, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serve(t, router, tt.target)

			assert.Equal(t, tt.status, w.Code)
			errBody := body["error"].(map[string]interface{})
			assert.Equal(t, tt.kind, errBody["kind"])
		})
	}
}
