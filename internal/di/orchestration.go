package di

import (
	"fmt"

	"github.com/aristath/riskflow/internal/agents"
	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/config"
	"github.com/aristath/riskflow/internal/orchestrator"
	"github.com/aristath/riskflow/internal/patterns"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/aristath/riskflow/pkg/embedded"
	"github.com/rs/zerolog"
)

// InitializeOrchestration registers the standard agents, loads the pattern catalog and
// assembles the orchestrator. Assembly fails if any pattern references a capability
// that is not registered.
func InitializeOrchestration(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Registry = capabilities.NewRegistry()
	standard := agents.Standard(agents.Dependencies{
		Packs:       container.PricingService,
		Holdings:    container.Ledger,
		Exposure:    container.ExposureService,
		Attribution: container.AttributionService,
		Scenarios:   container.Scenarios,
		Validator:   container.Validator,
		DefaultBase: baseCurrency(cfg),
		Log:         log,
	})
	if err := agents.RegisterAll(container.Registry, standard...); err != nil {
		return err
	}

	catalog, err := LoadCatalog(container.Validator, cfg.Engine.PatternsDir)
	if err != nil {
		return err
	}
	container.Catalog = catalog

	container.Metrics = orchestrator.NewMetrics(container.MetricsRegistry)

	orch, err := orchestrator.New(container.Registry, container.GraphStore, container.Catalog, orchestrator.Options{
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		Events:         container.EventManager,
		Metrics:        container.Metrics,
	}, log)
	if err != nil {
		return err
	}
	container.Orchestrator = orch

	log.Info().
		Strs("capabilities", container.Registry.Names()).
		Strs("patterns", container.Catalog.IDs()).
		Msg("Orchestrator assembled")

	return nil
}

// LoadCatalog builds the catalog from the embedded patterns plus, when extraDir is set,
// the pattern documents in that directory. A pattern on disk replaces an embedded
// pattern with the same id.
func LoadCatalog(v *validation.Validator, extraDir string) (*patterns.Catalog, error) {
	loaded, err := patterns.LoadFS(v, embedded.Files, embedded.PatternsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded patterns: %w", err)
	}

	if extraDir != "" {
		extra, err := patterns.LoadDir(v, extraDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load patterns from %s: %w", extraDir, err)
		}
		loaded = overlay(loaded, extra)
	}

	catalog, err := patterns.NewCatalog(loaded...)
	if err != nil {
		return nil, fmt.Errorf("failed to build pattern catalog: %w", err)
	}
	return catalog, nil
}

func overlay(base, extra []*patterns.Pattern) []*patterns.Pattern {
	replaced := make(map[string]bool, len(extra))
	for _, p := range extra {
		replaced[p.ID] = true
	}
	merged := make([]*patterns.Pattern, 0, len(base)+len(extra))
	for _, p := range base {
		if !replaced[p.ID] {
			merged = append(merged, p)
		}
	}
	return append(merged, extra...)
}
