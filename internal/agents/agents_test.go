package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/modules/risk"
	testingpkg "github.com/aristath/riskflow/internal/testing"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDoc = `
scenarios:
  - name: real_rate_up_100
    shocks:
      real_rate: 100
`

// stalePacks resolves packs from the mock reader and treats every pack as published too long ago
type stalePacks struct {
	*testingpkg.MockPackReader
}

func (s stalePacks) RequireFresh(pack *domain.Pack) (*domain.Pack, error) {
	return nil, &domain.PackStaleError{PackID: pack.ID, Age: 48 * time.Hour, Threshold: 36 * time.Hour}
}

func (s stalePacks) AllowStale(pack *domain.Pack) (*domain.Pack, domain.Provenance, error) {
	return pack, domain.Provenance{
		Source:      "pricing_pack",
		Degraded:    true,
		Confidence:  0.5,
		Limitations: []string{"pack is stale"},
	}, nil
}

// freshPacks resolves packs from the mock reader and treats every pack as fresh
type freshPacks struct {
	*testingpkg.MockPackReader
}

func (p freshPacks) RequireFresh(pack *domain.Pack) (*domain.Pack, error) { return pack, nil }

func (p freshPacks) AllowStale(pack *domain.Pack) (*domain.Pack, domain.Provenance, error) {
	return pack, domain.Computed("pricing_pack"), nil
}

type agentFixture struct {
	packs    *testingpkg.MockPackReader
	holdings *testingpkg.MockHoldingsProvider
	agents   map[string]capabilities.Agent
	registry *capabilities.Registry
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()

	packs := testingpkg.NewMockPackReader()
	securities := testingpkg.SeedReferencePack(packs, 120)
	holdings := testingpkg.NewMockHoldingsProvider()
	positions := make([]domain.Holding, 0, len(securities))
	for _, sec := range securities {
		positions = append(positions, sec.Holding())
	}
	holdings.SetHoldings("main", positions)

	v := validation.New()
	library, err := risk.LoadScenarios(v, []byte(scenariosDoc))
	require.NoError(t, err)

	store := graph.NewMemoryStore(utils.NewSequence(0))
	betas := risk.NewBetaService(packs, store, risk.BetaConfig{Window: 252, MinObservations: 60}, zerolog.Nop())

	standard := Standard(Dependencies{
		Packs:       stalePacks{packs},
		Holdings:    holdings,
		Exposure:    risk.NewExposureService(packs, holdings, betas, zerolog.Nop()),
		Attribution: risk.NewAttributionService(packs, holdings, risk.BasisPoint, zerolog.Nop()),
		Scenarios:   library,
		Validator:   v,
		DefaultBase: domain.CurrencyUSD,
		Log:         zerolog.Nop(),
	})

	registry := capabilities.NewRegistry()
	require.NoError(t, RegisterAll(registry, standard...))

	byName := make(map[string]capabilities.Agent, len(standard))
	for _, agent := range standard {
		byName[agent.Contract().Name] = agent
	}
	return &agentFixture{packs: packs, holdings: holdings, agents: byName, registry: registry}
}

func (f *agentFixture) execute(t *testing.T, name string, in capabilities.Input) (any, error) {
	t.Helper()
	return f.agents[name].Execute(context.Background(), in)
}

func TestStandard_RegistersEveryCapability(t *testing.T) {
	f := newAgentFixture(t)

	assert.Equal(t, []string{
		CapHoldings,
		CapResolvePack,
		CapCurrencyAttribution,
		CapDaR,
		CapFactorExposure,
		CapScenario,
	}, f.registry.Names())

	err := RegisterAll(f.registry, NewScenarioAgent(nil))
	var dup *capabilities.DuplicateCapabilityError
	assert.ErrorAs(t, err, &dup)
}

func TestResolvePackAgent(t *testing.T) {
	f := newAgentFixture(t)

	// Stale packs fail unless the caller opts into the degraded path
	_, err := f.execute(t, CapResolvePack, capabilities.Input{"pack_id": testingpkg.ReferencePackID})
	var stale *domain.PackStaleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, domain.KindStale, stale.Kind())

	_, err = f.execute(t, CapResolvePack, capabilities.Input{"pack_id": testingpkg.ReferencePackID, "freshness": FreshnessRequireFresh})
	assert.ErrorAs(t, err, &stale)

	out, err := f.execute(t, CapResolvePack, capabilities.Input{"pack_id": testingpkg.ReferencePackID, "freshness": FreshnessAllowStale})
	require.NoError(t, err)
	resolved := out.(*ResolvedPack)
	assert.Equal(t, testingpkg.ReferencePackID, resolved.ID)
	assert.True(t, resolved.Provenance.Degraded)
	assert.NotEmpty(t, resolved.Provenance.Limitations)

	encoded, err := json.Marshal(resolved)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"id":"PP_20240115_1"`)

	_, err = f.execute(t, CapResolvePack, capabilities.Input{"pack_id": testingpkg.ReferencePackID, "freshness": "any"})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = f.execute(t, CapResolvePack, capabilities.Input{"pack_id": ""})
	assert.ErrorAs(t, err, &validation)

	_, err = f.execute(t, CapResolvePack, capabilities.Input{"pack_id": "PP_20300101_9", "freshness": FreshnessAllowStale})
	var notFound *domain.PackNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestResolvePackAgent_FreshPackIsComputed(t *testing.T) {
	packs := testingpkg.NewMockPackReader()
	testingpkg.SeedReferencePack(packs, 10)
	agent := NewResolvePackAgent(freshPacks{packs})

	out, err := agent.Execute(context.Background(), capabilities.Input{"pack_id": testingpkg.ReferencePackID})

	require.NoError(t, err)
	assert.False(t, out.(*ResolvedPack).Provenance.Degraded)
}

func TestResolvePackAgent_UnboundIDResolvesLatest(t *testing.T) {
	packs := testingpkg.NewMockPackReader()
	testingpkg.SeedReferencePack(packs, 10)
	packs.AddPack("PP_20240116_2", testingpkg.ReferenceAsOf.AddDate(0, 0, 1))
	agent := NewResolvePackAgent(freshPacks{packs})

	assert.Empty(t, agent.Contract().Required)

	out, err := agent.Execute(context.Background(), capabilities.Input{})
	require.NoError(t, err)
	assert.Equal(t, "PP_20240116_2", out.(*ResolvedPack).ID)

	// The freshness policy applies to the latest pack as well
	stale := NewResolvePackAgent(stalePacks{packs})
	_, err = stale.Execute(context.Background(), capabilities.Input{})
	var staleErr *domain.PackStaleError
	assert.ErrorAs(t, err, &staleErr)

	_, err = NewResolvePackAgent(freshPacks{testingpkg.NewMockPackReader()}).Execute(context.Background(), capabilities.Input{})
	var notFound *domain.PackNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestHoldingsAgent(t *testing.T) {
	f := newAgentFixture(t)

	out, err := f.execute(t, CapHoldings, capabilities.Input{"portfolio_id": "main"})
	require.NoError(t, err)
	assert.Len(t, out.([]domain.Holding), 2)

	out, err = f.execute(t, CapHoldings, capabilities.Input{"portfolio_id": "empty"})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out.([]domain.Holding))

	f.holdings.SetError(errors.New("database is locked"))
	_, err = f.execute(t, CapHoldings, capabilities.Input{"portfolio_id": "main"})
	assert.ErrorContains(t, err, "database is locked")
}

func TestFactorExposureAgent(t *testing.T) {
	f := newAgentFixture(t)
	resolved, err := f.execute(t, CapResolvePack, capabilities.Input{"pack_id": testingpkg.ReferencePackID})
	require.NoError(t, err)
	holdings, err := f.execute(t, CapHoldings, capabilities.Input{"portfolio_id": "main"})
	require.NoError(t, err)

	out, err := f.execute(t, CapFactorExposure, capabilities.Input{
		"holdings":     holdings,
		"pack_id":      resolved,
		"portfolio_id": "main",
	})
	require.NoError(t, err)

	exposure := out.(*domain.PortfolioExposure)
	assert.Equal(t, testingpkg.ReferencePackID, exposure.PackID)
	assert.InDelta(t, 3650.0, exposure.NAV, 1e-9)
	assert.InDelta(t, (2000*-2.0+1650*-1.5)/3650, exposure.Exposure[domain.FactorRealRate], 1e-8)

	// A cached payload decodes to the same type and values
	payload, err := json.Marshal(exposure)
	require.NoError(t, err)
	decoded, err := f.agents[CapFactorExposure].(capabilities.OutputDecoder).DecodeOutput(payload)
	require.NoError(t, err)
	assert.Equal(t, exposure.NAV, decoded.(*domain.PortfolioExposure).NAV)
	assert.Equal(t, exposure.Exposure, decoded.(*domain.PortfolioExposure).Exposure)

	// Holdings bound as a pattern literal
	out, err = f.execute(t, CapFactorExposure, capabilities.Input{
		"holdings":      []any{map[string]any{"symbol": "AAPL", "currency": "USD", "quantity": 10}},
		"pack_id":       testingpkg.ReferencePackID,
		"base_currency": "usd",
	})
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, out.(*domain.PortfolioExposure).NAV, 1e-9)

	_, err = f.execute(t, CapFactorExposure, capabilities.Input{
		"holdings":      holdings,
		"pack_id":       testingpkg.ReferencePackID,
		"base_currency": "EURO",
	})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestDaRAgent_ReferenceScenario(t *testing.T) {
	f := newAgentFixture(t)
	holdings, err := f.execute(t, CapHoldings, capabilities.Input{"portfolio_id": "main"})
	require.NoError(t, err)
	exposure, err := f.execute(t, CapFactorExposure, capabilities.Input{"holdings": holdings, "pack_id": testingpkg.ReferencePackID})
	require.NoError(t, err)

	byName, err := f.execute(t, CapDaR, capabilities.Input{"exposure": exposure, "scenario": "real_rate_up_100"})
	require.NoError(t, err)
	assert.InDelta(t, -64.75, byName.(*domain.DaRResult).DeltaNAV, 1e-6)
	assert.Equal(t, DefaultConfidence, byName.(*domain.DaRResult).Confidence)

	scenario, err := f.execute(t, CapScenario, capabilities.Input{"name": "real_rate_up_100", "scale": 2})
	require.NoError(t, err)
	doubled, err := f.execute(t, CapDaR, capabilities.Input{"exposure": exposure, "scenario": scenario, "confidence": 0.99})
	require.NoError(t, err)
	assert.InDelta(t, -129.5, doubled.(*domain.DaRResult).DeltaNAV, 1e-6)

	// Exposure and scenario arriving as decoded JSON, as they do from a cached step
	raw := func(v any) any {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var out any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	}
	decoded, err := f.execute(t, CapDaR, capabilities.Input{"exposure": raw(exposure), "scenario": raw(scenario)})
	require.NoError(t, err)
	assert.InDelta(t, -129.5, decoded.(*domain.DaRResult).DeltaNAV, 1e-6)
}

func TestDaRAgent_Failures(t *testing.T) {
	f := newAgentFixture(t)
	holdings, err := f.execute(t, CapHoldings, capabilities.Input{"portfolio_id": "main"})
	require.NoError(t, err)
	exposure, err := f.execute(t, CapFactorExposure, capabilities.Input{"holdings": holdings, "pack_id": testingpkg.ReferencePackID})
	require.NoError(t, err)

	_, err = f.execute(t, CapDaR, capabilities.Input{"exposure": exposure, "scenario": "unknown"})
	var notFound *domain.ScenarioNotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = f.execute(t, CapDaR, capabilities.Input{"exposure": exposure, "scenario": map[string]any{"name": "x"}})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = f.execute(t, CapDaR, capabilities.Input{"exposure": exposure, "scenario": "real_rate_up_100", "confidence": 1.5})
	assert.ErrorAs(t, err, &validation)

	_, err = f.execute(t, CapScenario, capabilities.Input{"name": "real_rate_up_100", "scale": -1})
	assert.ErrorAs(t, err, &validation)
}

func TestCurrencyAttributionAgent(t *testing.T) {
	f := newAgentFixture(t)
	const endPackID = "PP_20240215_2"
	f.packs.AddPack(endPackID, testingpkg.ReferenceAsOf.AddDate(0, 1, 0))
	f.packs.SetPrice(endPackID, "AAPL", 220, domain.CurrencyUSD)
	f.packs.SetPrice(endPackID, "SAP", 150, domain.CurrencyEUR)
	f.packs.SetFXRate(endPackID, domain.CurrencyEUR, domain.CurrencyUSD, 1.21)

	holdings, err := f.execute(t, CapHoldings, capabilities.Input{"portfolio_id": "main"})
	require.NoError(t, err)

	out, err := f.execute(t, CapCurrencyAttribution, capabilities.Input{
		"holdings":      holdings,
		"start_pack_id": testingpkg.ReferencePackID,
		"end_pack_id":   endPackID,
		"portfolio_id":  "main",
	})
	require.NoError(t, err)

	result := out.(*domain.CurrencyAttributionResult)
	assert.Equal(t, endPackID, result.PackID)
	sum := result.LocalReturn + result.CurrencyReturn + result.Interaction
	assert.InDelta(t, result.TotalReturn, sum, risk.BasisPoint)
	assert.InDelta(t, 2000*0.1/3650, result.LocalReturn, 1e-12)
	assert.InDelta(t, 1650*0.1/3650, result.CurrencyReturn, 1e-12)

	_, err = f.execute(t, CapCurrencyAttribution, capabilities.Input{
		"holdings":      holdings,
		"start_pack_id": endPackID,
		"end_pack_id":   testingpkg.ReferencePackID,
	})
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}
