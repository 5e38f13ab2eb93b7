package orchestrator

import (
	"context"
	"math"
	"testing"

	"github.com/aristath/riskflow/internal/agents"
	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/modules/risk"
	"github.com/aristath/riskflow/internal/patterns"
	testingpkg "github.com/aristath/riskflow/internal/testing"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/aristath/riskflow/pkg/embedded"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freshPacks resolves packs from the mock reader and treats every pack as fresh
type freshPacks struct {
	*testingpkg.MockPackReader
}

func (p freshPacks) RequireFresh(pack *domain.Pack) (*domain.Pack, error) { return pack, nil }

func (p freshPacks) AllowStale(pack *domain.Pack) (*domain.Pack, domain.Provenance, error) {
	return pack, domain.Computed("pricing_pack"), nil
}

type referenceWorld struct {
	packs *testingpkg.MockPackReader
	store *graph.MemoryStore
	o     *Orchestrator
}

func newReferenceWorld(t *testing.T) *referenceWorld {
	t.Helper()
	v := validation.New()

	packs := testingpkg.NewMockPackReader()
	securities := testingpkg.SeedReferencePack(packs, 300)
	holdings := testingpkg.NewMockHoldingsProvider()
	positions := make([]domain.Holding, 0, len(securities))
	for _, sec := range securities {
		positions = append(positions, sec.Holding())
	}
	holdings.SetHoldings("main", positions)

	scenarios, err := embedded.Scenarios()
	require.NoError(t, err)
	library, err := risk.LoadScenarios(v, scenarios)
	require.NoError(t, err)

	loaded, err := patterns.LoadFS(v, embedded.Files, embedded.PatternsDir)
	require.NoError(t, err)
	catalog, err := patterns.NewCatalog(loaded...)
	require.NoError(t, err)

	seq := utils.NewSequence(0)
	store := graph.NewMemoryStore(seq)
	betas := risk.NewBetaService(packs, store, risk.BetaConfig{Window: 252, MinObservations: 60}, zerolog.Nop())

	registry := capabilities.NewRegistry()
	require.NoError(t, agents.RegisterAll(registry, agents.Standard(agents.Dependencies{
		Packs:       freshPacks{packs},
		Holdings:    holdings,
		Exposure:    risk.NewExposureService(packs, holdings, betas, zerolog.Nop()),
		Attribution: risk.NewAttributionService(packs, holdings, risk.BasisPoint, zerolog.Nop()),
		Scenarios:   library,
		Validator:   v,
		DefaultBase: domain.CurrencyUSD,
		Log:         zerolog.Nop(),
	})...))

	o, err := New(registry, store, catalog, Options{MaxConcurrency: 3}, zerolog.Nop())
	require.NoError(t, err)
	return &referenceWorld{packs: packs, store: store, o: o}
}

func TestEndToEnd_RateShockReferenceDaR(t *testing.T) {
	w := newReferenceWorld(t)
	query := Query{"pack_id": testingpkg.ReferencePackID, "portfolio_id": "main"}

	result, err := w.o.Run(context.Background(), "rate_shock", query)
	require.NoError(t, err)

	assert.Equal(t, patterns.ShapeMapping, result.Shape)
	dar := result.Mapping()["dar"].(*domain.DaRResult)
	// AAPL 2000 × -2.0 × 1% + SAP 1650 × -1.5 × 1%
	assert.InDelta(t, -64.75, dar.DeltaNAV, 1e-6)
	assert.Equal(t, 0.95, dar.Confidence)
	assert.Equal(t, testingpkg.ReferencePackID, dar.PackID)
	assert.Equal(t, risk.DaRMethod, dar.Method)

	// The exposure step is served from the graph store on the next run
	again, err := w.o.Run(context.Background(), "rate_shock", query)
	require.NoError(t, err)
	assert.Equal(t, 1, again.CacheHits)
	assert.InDelta(t, dar.DeltaNAV, again.Mapping()["dar"].(*domain.DaRResult).DeltaNAV, 1e-12)
}

func TestEndToEnd_DoubledShockDoesNotShrinkDaR(t *testing.T) {
	w := newReferenceWorld(t)

	for _, name := range []string{"real_rate_up_100", "rates_and_credit", "stagflation", "equity_drawdown"} {
		t.Run(name, func(t *testing.T) {
			result, err := w.o.Run(context.Background(), "scenario_stress", Query{
				"pack_id":      testingpkg.ReferencePackID,
				"portfolio_id": "main",
				"scenario":     name,
			})
			require.NoError(t, err)

			panels := result.Panels()
			require.Len(t, panels, 3)
			nominal := panels[0].Value.(*domain.DaRResult)
			doubled := panels[1].Value.(*domain.DaRResult)
			assert.GreaterOrEqual(t, doubled.Magnitude+1e-9, nominal.Magnitude)
			assert.InDelta(t, 2*nominal.DeltaNAV, doubled.DeltaNAV, 1e-6)
		})
	}
}

func TestEndToEnd_CurrencyAttributionReconciles(t *testing.T) {
	w := newReferenceWorld(t)
	const endPackID = "PP_20240215_2"
	w.packs.AddPack(endPackID, testingpkg.ReferenceAsOf.AddDate(0, 1, 0))
	w.packs.SetPrice(endPackID, "AAPL", 210, domain.CurrencyUSD)
	w.packs.SetPrice(endPackID, "SAP", 140, domain.CurrencyEUR)
	w.packs.SetFXRate(endPackID, domain.CurrencyEUR, domain.CurrencyUSD, 1.15)

	result, err := w.o.Run(context.Background(), "currency_attribution", Query{
		"start_pack_id": testingpkg.ReferencePackID,
		"pack_id":       endPackID,
		"portfolio_id":  "main",
	})
	require.NoError(t, err)

	attribution := result.Panels()[0].Value.(*domain.CurrencyAttributionResult)
	sum := attribution.LocalReturn + attribution.CurrencyReturn + attribution.Interaction
	assert.LessOrEqual(t, math.Abs(sum-attribution.TotalReturn), risk.BasisPoint)
	assert.Equal(t, testingpkg.ReferencePackID, attribution.StartPackID)
	assert.Equal(t, endPackID, attribution.PackID)
}

func TestEndToEnd_FailuresCarryStepAndKind(t *testing.T) {
	w := newReferenceWorld(t)

	tests := []struct {
		name       string
		query      Query
		stepID     string
		capability string
		kind       domain.ErrorKind
		target     any
	}{
		{
			name:       "unknown pack",
			query:      Query{"pack_id": "PP_20300101_9", "portfolio_id": "main"},
			stepID:     "pack",
			capability: agents.CapResolvePack,
			kind:       domain.KindNotFound,
			target:     new(*domain.PackNotFoundError),
		},
		{
			name:       "empty portfolio",
			query:      Query{"pack_id": testingpkg.ReferencePackID, "portfolio_id": "nobody"},
			stepID:     "exposure",
			capability: agents.CapFactorExposure,
			kind:       domain.KindValidation,
			target:     new(*domain.ValidationError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.o.Run(context.Background(), "factor_exposure", tt.query)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.stepID, stepErr.StepID)
			assert.Equal(t, tt.capability, stepErr.Capability)
			assert.Equal(t, tt.kind, stepErr.Kind)
			assert.ErrorAs(t, err, tt.target)
		})
	}
}

func TestEndToEnd_InsufficientHistoryFailsRun(t *testing.T) {
	w := newReferenceWorld(t)
	const thinPackID = "PP_20240116_3"
	w.packs.AddPack(thinPackID, testingpkg.ReferenceAsOf.AddDate(0, 0, 1))
	w.packs.SetPrice(thinPackID, "AAPL", 200, domain.CurrencyUSD)
	w.packs.SetPrice(thinPackID, "SAP", 150, domain.CurrencyEUR)
	w.packs.SetFXRate(thinPackID, domain.CurrencyEUR, domain.CurrencyUSD, 1.10)
	w.packs.SetSeries(thinPackID, "AAPL", testingpkg.NewSecurityHistory(
		testingpkg.NewFactorHistory(7, 30, testingpkg.ReferenceAsOf), 0, map[domain.Factor]float64{domain.FactorRealRate: 1},
	))

	_, err := w.o.Run(context.Background(), "rate_shock", Query{"pack_id": thinPackID, "portfolio_id": "main"})

	var insufficient *domain.InsufficientHistoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "AAPL", insufficient.Symbol)
	assert.Equal(t, 0, w.store.Len())
}
