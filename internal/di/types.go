// Package di provides dependency injection wiring and initialization.
package di

import (
	"errors"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/database"
	"github.com/aristath/riskflow/internal/events"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/modules/portfolio"
	"github.com/aristath/riskflow/internal/modules/pricing"
	"github.com/aristath/riskflow/internal/modules/risk"
	"github.com/aristath/riskflow/internal/orchestrator"
	"github.com/aristath/riskflow/internal/patterns"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
)

// Container holds all dependencies for the application.
//
// It is created by Wire() and handed to the HTTP server and the CLI. Databases are
// opened first, then repositories and services, then the capability registry, the
// pattern catalog and finally the orchestrator, which seals the registry.
type Container struct {
	// Databases
	PricingDB   *database.DB // Pricing packs, prices, FX rates, return series
	GraphDB     *database.DB // Append-only knowledge graph nodes
	PortfolioDB *database.DB // Lots and trades

	// Shared
	Sequence        *utils.Sequence // Ids for graph nodes and pricing packs
	Validator       *validation.Validator
	MetricsRegistry *prometheus.Registry
	EventBus        *events.Bus
	EventManager    *events.Manager

	// Repositories
	PricingRepo   *pricing.Repository
	PortfolioRepo *portfolio.Repository
	GraphStore    graph.Store

	// Services
	PricingService     *pricing.Service
	Ledger             *portfolio.Ledger
	BetaService        *risk.BetaService
	ExposureService    *risk.ExposureService
	AttributionService *risk.AttributionService
	Scenarios          *risk.ScenarioLibrary

	// Orchestration
	Registry     *capabilities.Registry
	Catalog      *patterns.Catalog
	Metrics      *orchestrator.Metrics
	Orchestrator *orchestrator.Orchestrator
}

// Close closes every open database. It is safe on a partially wired container.
func (c *Container) Close() error {
	var errs []error
	for _, db := range []*database.DB{c.PricingDB, c.GraphDB, c.PortfolioDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
