package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/pkg/formulas"
)

// DaRMethod names the quantile rule: every shock vector in the scenario's empirical set is
// applied to the portfolio, the resulting ΔNAV values are sorted ascending, and the value at
// 1-based rank ceil((1-c)·n), clamped to [1, n], is reported.
const DaRMethod = "empirical_scenario_quantile"

// ComputeDaR estimates the portfolio value change under a scenario at a confidence level.
// The result is a pure function of its inputs.
func ComputeDaR(exposure *domain.PortfolioExposure, scenario Scenario, confidence float64) (*domain.DaRResult, error) {
	if exposure == nil || len(exposure.Holdings) == 0 {
		return nil, &domain.ValidationError{Field: "exposure", Reason: "portfolio has no weighted holdings"}
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, &domain.ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be in (0, 1), got %g", confidence)}
	}
	if len(scenario.Shocks) == 0 {
		return nil, &domain.ValidationError{Field: "scenario", Reason: "scenario has no shocks"}
	}

	// Every factor the scenario names must have a beta for every holding
	factors := scenario.Factors()
	for _, h := range exposure.Holdings {
		beta, ok := exposure.Betas[h.Symbol]
		for _, factor := range factors {
			if !ok {
				return nil, &domain.MissingBetaError{Symbol: h.Symbol, Factor: factor, PackID: exposure.PackID}
			}
			if _, found := beta.Betas[factor]; !found {
				return nil, &domain.MissingBetaError{Symbol: h.Symbol, Factor: factor, PackID: exposure.PackID}
			}
		}
	}

	vectors := scenario.Vectors()
	deltas := make([]float64, len(vectors))
	for k, shocks := range vectors {
		deltas[k] = DeltaNAV(exposure, shocks)
	}

	delta, rank := formulas.TailQuantile(deltas, confidence)
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, &domain.ComputationError{Op: "dar " + scenario.Name, Err: fmt.Errorf("non-finite delta NAV %v", delta)}
	}

	return &domain.DaRResult{
		PortfolioID:  exposure.PortfolioID,
		PackID:       exposure.PackID,
		Scenario:     scenario.Name,
		Shocks:       copyShocks(scenario.Shocks),
		Confidence:   confidence,
		NAV:          exposure.NAV,
		DeltaNAV:     delta,
		DeltaNAVPct:  delta / exposure.NAV,
		Magnitude:    math.Abs(delta),
		SampleCount:  len(deltas),
		QuantileRank: rank,
		Method:       DaRMethod,
	}, nil
}

// DeltaNAV applies one shock vector (basis points) to the portfolio:
// NAV × Σ_holdings weight × Σ_factors beta × shock.
// Holdings are visited in their (sorted) order so the sum is reproducible.
func DeltaNAV(exposure *domain.PortfolioExposure, shocks map[domain.Factor]float64) float64 {
	factors := make([]domain.Factor, 0, len(shocks))
	for factor := range shocks {
		factors = append(factors, factor)
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i] < factors[j] })

	var portfolioReturn float64
	for _, h := range exposure.Holdings {
		beta := exposure.Betas[h.Symbol]
		var holdingReturn float64
		for _, factor := range factors {
			holdingReturn += beta.Betas[factor] * shocks[factor] / 10000
		}
		portfolioReturn += h.Weight * holdingReturn
	}
	return exposure.NAV * portfolioReturn
}

func copyShocks(shocks map[domain.Factor]float64) map[domain.Factor]float64 {
	out := make(map[domain.Factor]float64, len(shocks))
	for factor, bp := range shocks {
		out[factor] = bp
	}
	return out
}
