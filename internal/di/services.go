package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/riskflow/internal/config"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/events"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/modules/portfolio"
	"github.com/aristath/riskflow/internal/modules/pricing"
	"github.com/aristath/riskflow/internal/modules/risk"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/aristath/riskflow/pkg/embedded"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// InitializeServices creates repositories and services on top of the open databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Sequence = utils.NewSequence(0)
	container.Validator = validation.New()

	container.MetricsRegistry = prometheus.NewRegistry()
	container.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Pricing packs
	container.PricingRepo = pricing.NewRepository(container.PricingDB.Conn(), container.Sequence, log)
	if err := container.PricingRepo.SeedSequence(ctx); err != nil {
		return fmt.Errorf("failed to seed id sequence from pricing packs: %w", err)
	}
	container.PricingService = pricing.NewService(container.PricingRepo, cfg.Pricing.StalenessThreshold.Duration, log)

	// Knowledge graph
	store, err := graph.NewSQLiteStore(ctx, container.GraphDB.Conn(), container.Sequence, log)
	if err != nil {
		return fmt.Errorf("failed to open knowledge graph: %w", err)
	}
	container.GraphStore = store

	// Portfolio
	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.Ledger = portfolio.NewLedger(container.PortfolioRepo, container.Validator, log)

	// Risk
	container.BetaService = risk.NewBetaService(container.PricingService, container.GraphStore, risk.BetaConfig{
		Window:          cfg.Risk.FactorWindow,
		MinObservations: cfg.Risk.MinObservations,
	}, log)
	container.ExposureService = risk.NewExposureService(container.PricingService, container.Ledger, container.BetaService, log)
	container.AttributionService = risk.NewAttributionService(
		container.PricingService,
		container.Ledger,
		cfg.Risk.ReconcileTolBP*risk.BasisPoint,
		log,
	)

	scenarios, err := loadScenarios(container.Validator, cfg.Risk.ScenariosFile)
	if err != nil {
		return err
	}
	container.Scenarios = scenarios

	log.Info().
		Int("scenarios", len(scenarios.Names())).
		Dur("staleness_threshold", cfg.Pricing.StalenessThreshold.Duration).
		Msg("Services initialized")

	return nil
}

// loadScenarios reads the embedded library and, when configured, a user library that
// overrides scenarios with the same name
func loadScenarios(v *validation.Validator, extraFile string) (*risk.ScenarioLibrary, error) {
	defaults, err := embedded.Scenarios()
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded scenarios: %w", err)
	}
	docs := [][]byte{defaults}

	if extraFile != "" {
		extra, err := os.ReadFile(extraFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario file %s: %w", extraFile, err)
		}
		docs = append(docs, extra)
	}

	lib, err := risk.LoadScenarios(v, docs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	return lib, nil
}

func baseCurrency(cfg *config.Config) domain.Currency {
	if cfg.Risk.DefaultBase == "" {
		return domain.CurrencyUSD
	}
	return domain.Currency(cfg.Risk.DefaultBase)
}
