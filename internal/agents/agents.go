// Package agents implements the capabilities the pattern catalog routes to. Agents are
// stateless: everything they read comes from their inputs, the pricing pack service and
// portfolio state.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/risk"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/rs/zerolog"
)

// Capability names
const (
	CapResolvePack         = "pricing.resolve_pack"
	CapHoldings            = "portfolio.holdings"
	CapFactorExposure      = "risk.factor_exposure"
	CapDaR                 = "risk.dar"
	CapCurrencyAttribution = "risk.currency_attribution"
	CapScenario            = "risk.scenario"
)

// PackResolver is the part of the pricing pack service used to resolve pack ids
type PackResolver interface {
	GetPack(ctx context.Context, packID string) (*domain.Pack, error)
	GetLatestPack(ctx context.Context) (*domain.Pack, error)
	RequireFresh(pack *domain.Pack) (*domain.Pack, error)
	AllowStale(pack *domain.Pack) (*domain.Pack, domain.Provenance, error)
}

// ExposureSource computes factor exposures of explicit holdings
type ExposureSource interface {
	ExposureOf(ctx context.Context, portfolioID string, holdings []domain.Holding, packID string, base domain.Currency) (*domain.PortfolioExposure, error)
}

// AttributionSource attributes the return of explicit holdings between two packs
type AttributionSource interface {
	AttributeHoldings(ctx context.Context, portfolioID string, holdings []domain.Holding, startPackID, endPackID string, base domain.Currency) (*domain.CurrencyAttributionResult, error)
}

// ScenarioSource looks up named scenarios
type ScenarioSource interface {
	Get(name string) (risk.Scenario, error)
}

// Dependencies are the collaborators the standard agent set is built from
type Dependencies struct {
	Packs       PackResolver
	Holdings    domain.HoldingsProvider
	Exposure    ExposureSource
	Attribution AttributionSource
	Scenarios   ScenarioSource
	Validator   *validation.Validator
	DefaultBase domain.Currency
	Log         zerolog.Logger
}

// Standard builds every agent in the standard set
func Standard(deps Dependencies) []capabilities.Agent {
	return []capabilities.Agent{
		NewResolvePackAgent(deps.Packs),
		NewHoldingsAgent(deps.Holdings),
		NewFactorExposureAgent(deps.Exposure, deps.DefaultBase, deps.Log),
		NewDaRAgent(deps.Scenarios, deps.Validator, deps.Log),
		NewCurrencyAttributionAgent(deps.Attribution, deps.DefaultBase, deps.Log),
		NewScenarioAgent(deps.Scenarios),
	}
}

// RegisterAll registers agents and stops at the first failure
func RegisterAll(registry *capabilities.Registry, agents ...capabilities.Agent) error {
	for _, agent := range agents {
		if err := registry.Register(agent); err != nil {
			return fmt.Errorf("failed to register %s: %w", agent.Contract().Name, err)
		}
	}
	return nil
}

func currencyInput(in capabilities.Input, name string, def domain.Currency) (domain.Currency, error) {
	code, err := in.StringOr(name, string(def))
	if err != nil {
		return "", err
	}
	code = strings.ToUpper(code)
	if !validation.IsCurrencyCode(code) {
		return "", &domain.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a currency code", code)}
	}
	return domain.Currency(code), nil
}

func holdingsInput(in capabilities.Input, name string) ([]domain.Holding, error) {
	if holdings, ok := in[name].([]domain.Holding); ok {
		return holdings, nil
	}
	var holdings []domain.Holding
	if err := in.Decode(name, &holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}
