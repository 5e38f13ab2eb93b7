package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/risk"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/rs/zerolog"
)

// DefaultConfidence is the DaR confidence used when a step binds none
const DefaultConfidence = 0.95

// FactorExposureAgent computes the factor exposure of explicit holdings at a pack.
// The output depends only on the inputs and the immutable pack, so it is cached by pack.
type FactorExposureAgent struct {
	exposure    ExposureSource
	defaultBase domain.Currency
	log         zerolog.Logger
}

// NewFactorExposureAgent creates a new risk.factor_exposure agent
func NewFactorExposureAgent(exposure ExposureSource, defaultBase domain.Currency, log zerolog.Logger) *FactorExposureAgent {
	return &FactorExposureAgent{
		exposure:    exposure,
		defaultBase: defaultBase,
		log:         log.With().Str("agent", CapFactorExposure).Logger(),
	}
}

// Contract implements capabilities.Agent
func (a *FactorExposureAgent) Contract() capabilities.Contract {
	return capabilities.Contract{
		Name:        CapFactorExposure,
		Required:    []string{"holdings", "pack_id"},
		CacheByPack: true,
		PackInput:   "pack_id",
	}
}

// Execute implements capabilities.Agent
func (a *FactorExposureAgent) Execute(ctx context.Context, in capabilities.Input) (any, error) {
	holdings, err := holdingsInput(in, "holdings")
	if err != nil {
		return nil, err
	}
	packID, err := in.PackID("pack_id")
	if err != nil {
		return nil, err
	}
	portfolioID, err := in.StringOr("portfolio_id", "")
	if err != nil {
		return nil, err
	}
	base, err := currencyInput(in, "base_currency", a.defaultBase)
	if err != nil {
		return nil, err
	}

	return a.exposure.ExposureOf(ctx, portfolioID, holdings, packID, base)
}

// DecodeOutput implements capabilities.OutputDecoder
func (a *FactorExposureAgent) DecodeOutput(payload []byte) (any, error) {
	var exposure domain.PortfolioExposure
	if err := json.Unmarshal(payload, &exposure); err != nil {
		return nil, fmt.Errorf("failed to decode cached exposure: %w", err)
	}
	return &exposure, nil
}

// DaRAgent estimates Distance-at-Risk of an exposure under a scenario
type DaRAgent struct {
	scenarios ScenarioSource
	validate  *validation.Validator
	log       zerolog.Logger
}

// NewDaRAgent creates a new risk.dar agent
func NewDaRAgent(scenarios ScenarioSource, validate *validation.Validator, log zerolog.Logger) *DaRAgent {
	return &DaRAgent{
		scenarios: scenarios,
		validate:  validate,
		log:       log.With().Str("agent", CapDaR).Logger(),
	}
}

// Contract implements capabilities.Agent
func (a *DaRAgent) Contract() capabilities.Contract {
	return capabilities.Contract{
		Name:     CapDaR,
		Required: []string{"exposure", "scenario"},
	}
}

// Execute implements capabilities.Agent. The scenario input is either a library scenario
// name or a scenario object produced by an earlier step.
func (a *DaRAgent) Execute(ctx context.Context, in capabilities.Input) (any, error) {
	exposure, err := exposureInput(in, "exposure")
	if err != nil {
		return nil, err
	}
	scenario, err := a.scenarioInput(in, "scenario")
	if err != nil {
		return nil, err
	}
	confidence, err := in.FloatOr("confidence", DefaultConfidence)
	if err != nil {
		return nil, err
	}

	result, err := risk.ComputeDaR(exposure, scenario, confidence)
	if err != nil {
		return nil, err
	}

	a.log.Debug().
		Str("portfolio_id", result.PortfolioID).
		Str("pack_id", result.PackID).
		Str("scenario", result.Scenario).
		Float64("delta_nav", result.DeltaNAV).
		Msg("Computed DaR")

	return result, nil
}

func (a *DaRAgent) scenarioInput(in capabilities.Input, name string) (risk.Scenario, error) {
	switch v := in[name].(type) {
	case string:
		return a.scenarios.Get(v)
	case risk.Scenario:
		return v, nil
	case *risk.Scenario:
		if v != nil {
			return *v, nil
		}
	}

	var scenario risk.Scenario
	if err := in.Decode(name, &scenario); err != nil {
		return risk.Scenario{}, err
	}
	if err := a.validate.Struct(scenario); err != nil {
		return risk.Scenario{}, err
	}
	return scenario, nil
}

func exposureInput(in capabilities.Input, name string) (*domain.PortfolioExposure, error) {
	if exposure, ok := in[name].(*domain.PortfolioExposure); ok && exposure != nil {
		return exposure, nil
	}
	var exposure domain.PortfolioExposure
	if err := in.Decode(name, &exposure); err != nil {
		return nil, err
	}
	return &exposure, nil
}

// CurrencyAttributionAgent decomposes the return of explicit holdings between two packs
type CurrencyAttributionAgent struct {
	attribution AttributionSource
	defaultBase domain.Currency
	log         zerolog.Logger
}

// NewCurrencyAttributionAgent creates a new risk.currency_attribution agent
func NewCurrencyAttributionAgent(attribution AttributionSource, defaultBase domain.Currency, log zerolog.Logger) *CurrencyAttributionAgent {
	return &CurrencyAttributionAgent{
		attribution: attribution,
		defaultBase: defaultBase,
		log:         log.With().Str("agent", CapCurrencyAttribution).Logger(),
	}
}

// Contract implements capabilities.Agent
func (a *CurrencyAttributionAgent) Contract() capabilities.Contract {
	return capabilities.Contract{
		Name:     CapCurrencyAttribution,
		Required: []string{"holdings", "start_pack_id", "end_pack_id"},
	}
}

// Execute implements capabilities.Agent
func (a *CurrencyAttributionAgent) Execute(ctx context.Context, in capabilities.Input) (any, error) {
	holdings, err := holdingsInput(in, "holdings")
	if err != nil {
		return nil, err
	}
	startPackID, err := in.PackID("start_pack_id")
	if err != nil {
		return nil, err
	}
	endPackID, err := in.PackID("end_pack_id")
	if err != nil {
		return nil, err
	}
	portfolioID, err := in.StringOr("portfolio_id", "")
	if err != nil {
		return nil, err
	}
	base, err := currencyInput(in, "base_currency", a.defaultBase)
	if err != nil {
		return nil, err
	}

	return a.attribution.AttributeHoldings(ctx, portfolioID, holdings, startPackID, endPackID, base)
}

// ScenarioAgent looks up a library scenario, optionally scaled
type ScenarioAgent struct {
	scenarios ScenarioSource
}

// NewScenarioAgent creates a new risk.scenario agent
func NewScenarioAgent(scenarios ScenarioSource) *ScenarioAgent {
	return &ScenarioAgent{scenarios: scenarios}
}

// Contract implements capabilities.Agent
func (a *ScenarioAgent) Contract() capabilities.Contract {
	return capabilities.Contract{
		Name:     CapScenario,
		Required: []string{"name"},
	}
}

// Execute implements capabilities.Agent
func (a *ScenarioAgent) Execute(ctx context.Context, in capabilities.Input) (any, error) {
	name, err := in.String("name")
	if err != nil {
		return nil, err
	}
	scale, err := in.FloatOr("scale", 1)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, &domain.ValidationError{Field: "scale", Reason: fmt.Sprintf("must be positive, got %g", scale)}
	}

	scenario, err := a.scenarios.Get(name)
	if err != nil {
		return nil, err
	}
	return scenario.Scaled(scale), nil
}
