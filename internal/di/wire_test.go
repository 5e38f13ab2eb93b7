package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/riskflow/internal/agents"
	"github.com/aristath/riskflow/internal/config"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/portfolio"
	"github.com/aristath/riskflow/internal/orchestrator"
	testingpkg "github.com/aristath/riskflow/internal/testing"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func wireContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })
	return container
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container := wireContainer(t, cfg)

	assert.NotNil(t, container.PricingService)
	assert.NotNil(t, container.GraphStore)
	assert.NotNil(t, container.Ledger)
	assert.NotNil(t, container.Orchestrator)
	assert.True(t, container.Registry.Sealed())
	assert.Equal(t, []string{"currency_attribution", "factor_exposure", "rate_shock", "scenario_stress"}, container.Catalog.IDs())
	assert.Contains(t, container.Scenarios.Names(), "real_rate_up_100")

	for _, name := range []string{"pricing.db", "graph.db", "portfolio.db"} {
		assert.FileExists(t, filepath.Join(cfg.DataDir, name))
	}
}

func TestWire_RejectsPatternWithUnknownCapability(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.PatternsDir = t.TempDir()
	writeFile(t, cfg.Engine.PatternsDir, "broken.yaml", `
id: broken
version: "1"
steps:
  - capability: risk.does_not_exist
    as: out
output:
  list: [out]
`)

	container, err := Wire(context.Background(), cfg, zerolog.Nop())

	assert.Nil(t, container)
	var notFound *domain.CapabilityNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestLoadCatalog_DirectoryOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rate_shock.yaml", `
id: rate_shock
version: "2.0"
steps:
  - capability: portfolio.holdings
    inputs:
      portfolio_id: {ctx: portfolio_id}
    as: holdings
output:
  list: [holdings]
`)
	writeFile(t, dir, "holdings_only.yaml", `
id: holdings_only
version: "1.0"
steps:
  - capability: portfolio.holdings
    inputs:
      portfolio_id: {ctx: portfolio_id}
    as: holdings
output:
  list: [holdings]
`)

	catalog, err := LoadCatalog(validation.New(), dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"currency_attribution", "factor_exposure", "holdings_only", "rate_shock", "scenario_stress"}, catalog.IDs())
	p, err := catalog.Get("rate_shock")
	require.NoError(t, err)
	assert.Equal(t, "2.0", p.Version)
}

func TestLoadScenarios_FileOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scenarios.yaml", `
scenarios:
  - name: real_rate_up_100
    description: Harsher house view
    shocks:
      real_rate: 150
`)

	lib, err := loadScenarios(validation.New(), filepath.Join(dir, "scenarios.yaml"))

	require.NoError(t, err)
	scenario, err := lib.Get("real_rate_up_100")
	require.NoError(t, err)
	assert.Equal(t, 150.0, scenario.Shocks[domain.FactorRealRate])
	assert.Contains(t, lib.Names(), "dollar_rally")
}

func TestWire_RunsPatternAgainstStoredData(t *testing.T) {
	cfg := testConfig(t)
	container := wireContainer(t, cfg)
	ctx := context.Background()

	packID := seedPack(t, container, 300, time.Now())
	securities := testingpkg.NewReferenceSecurities()
	for _, sec := range securities {
		_, err := container.Ledger.Execute(ctx, portfolio.Trade{
			PortfolioID: "main",
			Symbol:      sec.Symbol,
			Side:        portfolio.SideBuy,
			Quantity:    decimal.NewFromFloat(sec.Quantity),
			Price:       decimal.NewFromFloat(sec.Price),
			Currency:    sec.Currency,
			ExecutedAt:  testingpkg.ReferenceAsOf,
		})
		require.NoError(t, err)
	}

	query := orchestrator.Query{"pack_id": packID, "portfolio_id": "main"}
	result, err := container.Orchestrator.Run(ctx, "rate_shock", query)
	require.NoError(t, err)

	dar, ok := result.Mapping()["dar"].(*domain.DaRResult)
	require.True(t, ok)
	assert.InDelta(t, 3650.0, dar.NAV, 1e-9)
	assert.InDelta(t, -64.75, dar.DeltaNAV, 1e-6)

	// The exposure step is served from the knowledge graph the second time
	again, err := container.Orchestrator.Run(ctx, "rate_shock", query)
	require.NoError(t, err)
	assert.Equal(t, 1, again.CacheHits)
}

func TestWire_StalePackNeedsExplicitOptIn(t *testing.T) {
	cfg := testConfig(t)
	container := wireContainer(t, cfg)
	ctx := context.Background()

	// Published well beyond the freshness threshold
	packID := seedPack(t, container, 300, time.Now().Add(-2*cfg.Pricing.StalenessThreshold.Duration))
	buyReferenceHoldings(t, container)

	_, err := container.Orchestrator.Run(ctx, "rate_shock", orchestrator.Query{"pack_id": packID, "portfolio_id": "main"})
	var stepErr *orchestrator.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, domain.KindStale, stepErr.Kind)
	assert.Equal(t, "pricing.resolve_pack", stepErr.Capability)
	var stale *domain.PackStaleError
	assert.ErrorAs(t, err, &stale)

	result, err := container.Orchestrator.Run(ctx, "rate_shock", orchestrator.Query{
		"pack_id":      packID,
		"portfolio_id": "main",
		"freshness":    agents.FreshnessAllowStale,
	})
	require.NoError(t, err)
	pack, ok := result.Mapping()["pack"].(*agents.ResolvedPack)
	require.True(t, ok)
	assert.True(t, pack.Provenance.Degraded)
	assert.NotEmpty(t, pack.Provenance.Limitations)
	dar, ok := result.Mapping()["dar"].(*domain.DaRResult)
	require.True(t, ok)
	assert.InDelta(t, -64.75, dar.DeltaNAV, 1e-6)
}

func TestWire_UnboundPackIDUsesLatestPack(t *testing.T) {
	cfg := testConfig(t)
	container := wireContainer(t, cfg)

	packID := seedPack(t, container, 300, time.Now())
	buyReferenceHoldings(t, container)

	result, err := container.Orchestrator.Run(context.Background(), "rate_shock", orchestrator.Query{"portfolio_id": "main"})
	require.NoError(t, err)
	pack, ok := result.Mapping()["pack"].(*agents.ResolvedPack)
	require.True(t, ok)
	assert.Equal(t, packID, pack.ID)
	assert.False(t, pack.Provenance.Degraded)
}

func buyReferenceHoldings(t *testing.T, container *Container) {
	t.Helper()
	for _, sec := range testingpkg.NewReferenceSecurities() {
		_, err := container.Ledger.Execute(context.Background(), portfolio.Trade{
			PortfolioID: "main",
			Symbol:      sec.Symbol,
			Side:        portfolio.SideBuy,
			Quantity:    decimal.NewFromFloat(sec.Quantity),
			Price:       decimal.NewFromFloat(sec.Price),
			Currency:    sec.Currency,
			ExecutedAt:  testingpkg.ReferenceAsOf,
		})
		require.NoError(t, err)
	}
}

func seedPack(t *testing.T, container *Container, n int, publishedAt time.Time) string {
	t.Helper()
	ctx := context.Background()
	repo := container.PricingRepo

	pack, err := repo.Create(ctx, testingpkg.ReferenceAsOf)
	require.NoError(t, err)
	require.NoError(t, repo.AddFXRate(ctx, pack.ID, domain.CurrencyEUR, domain.CurrencyUSD, testingpkg.ReferenceEURUSD))

	factors := testingpkg.NewFactorHistory(42, n, testingpkg.ReferenceAsOf)
	for factor, series := range factors {
		require.NoError(t, repo.AddReturns(ctx, pack.ID, factor.SeriesID(), series))
	}
	for _, sec := range testingpkg.NewReferenceSecurities() {
		require.NoError(t, repo.AddPrice(ctx, pack.ID, sec.Symbol, sec.Currency, sec.Price))
		require.NoError(t, repo.AddReturns(ctx, pack.ID, sec.Symbol, testingpkg.NewSecurityHistory(factors, sec.Alpha, sec.Betas)))
	}

	_, err = repo.Publish(ctx, pack.ID, publishedAt)
	require.NoError(t, err)
	return pack.ID
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
