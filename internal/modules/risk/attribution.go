package risk

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/rs/zerolog"
)

// BasisPoint is one hundredth of a percent
const BasisPoint = 0.0001

// AttributionService decomposes portfolio return between two packs into local,
// currency and interaction components
type AttributionService struct {
	packs     domain.PackReader
	holdings  domain.HoldingsProvider
	tolerance float64
	log       zerolog.Logger
}

// NewAttributionService creates a new attribution service. tolerance is the maximum
// allowed gap between the component sum and the total return, as a fraction.
func NewAttributionService(packs domain.PackReader, holdings domain.HoldingsProvider, tolerance float64, log zerolog.Logger) *AttributionService {
	if tolerance <= 0 {
		tolerance = BasisPoint
	}
	return &AttributionService{
		packs:     packs,
		holdings:  holdings,
		tolerance: tolerance,
		log:       log.With().Str("service", "currency_attribution").Logger(),
	}
}

// Attribute loads a portfolio's holdings and attributes their return between the packs
func (s *AttributionService) Attribute(ctx context.Context, portfolioID, startPackID, endPackID string, base domain.Currency) (*domain.CurrencyAttributionResult, error) {
	holdings, err := s.holdings.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings of %s: %w", portfolioID, err)
	}
	return s.AttributeHoldings(ctx, portfolioID, holdings, startPackID, endPackID, base)
}

// AttributeHoldings attributes the return of fixed holdings from the start pack to the end pack.
// Per holding: local = P1/P0 - 1, currency = FX1/FX0 - 1, interaction = local × currency.
// Portfolio components are weighted by base value at the start pack; the total return is
// computed independently from base values and must match the component sum.
func (s *AttributionService) AttributeHoldings(ctx context.Context, portfolioID string, holdings []domain.Holding, startPackID, endPackID string, base domain.Currency) (*domain.CurrencyAttributionResult, error) {
	startPack, err := s.packs.GetPack(ctx, startPackID)
	if err != nil {
		return nil, err
	}
	endPack, err := s.packs.GetPack(ctx, endPackID)
	if err != nil {
		return nil, err
	}
	if endPack.AsOf.Before(startPack.AsOf) {
		return nil, &domain.ValidationError{
			Field:  "start_pack_id",
			Reason: fmt.Sprintf("start pack %s is later than end pack %s", startPack.ID, endPack.ID),
		}
	}

	start, startValue, err := Weigh(ctx, s.packs, holdings, startPack.ID, base)
	if err != nil {
		return nil, err
	}
	end, endValue, err := Weigh(ctx, s.packs, holdings, endPack.ID, base)
	if err != nil {
		return nil, err
	}

	result := &domain.CurrencyAttributionResult{
		PortfolioID:  portfolioID,
		StartPackID:  startPack.ID,
		PackID:       endPack.ID,
		BaseCurrency: base,
		Holdings:     make([]domain.HoldingAttribution, 0, len(start)),
	}

	// Weigh sorts by symbol, so start[i] and end[i] are the same holding
	for i, h0 := range start {
		h1 := end[i]
		local := h1.Price/h0.Price - 1
		currency := h1.FXRate/h0.FXRate - 1
		interaction := local * currency

		result.Holdings = append(result.Holdings, domain.HoldingAttribution{
			Symbol:         h0.Symbol,
			Currency:       h0.Currency,
			Weight:         h0.Weight,
			LocalReturn:    local,
			CurrencyReturn: currency,
			Interaction:    interaction,
			TotalReturn:    h1.BaseValue/h0.BaseValue - 1,
		})
		result.LocalReturn += h0.Weight * local
		result.CurrencyReturn += h0.Weight * currency
		result.Interaction += h0.Weight * interaction
	}

	result.TotalReturn = endValue/startValue - 1
	if err := Reconcile(result, s.tolerance); err != nil {
		return nil, err
	}

	sort.SliceStable(result.Holdings, func(i, j int) bool { return result.Holdings[i].Weight > result.Holdings[j].Weight })

	s.log.Debug().
		Str("portfolio_id", portfolioID).
		Str("start_pack_id", startPack.ID).
		Str("pack_id", endPack.ID).
		Float64("total_return", result.TotalReturn).
		Float64("residual", result.Residual).
		Msg("Computed currency attribution")

	return result, nil
}

// Reconcile records the gap between the component sum and the total return and fails
// when it exceeds the tolerance
func Reconcile(result *domain.CurrencyAttributionResult, tolerance float64) error {
	components := result.LocalReturn + result.CurrencyReturn + result.Interaction
	result.Residual = components - result.TotalReturn
	if math.IsNaN(result.Residual) || math.Abs(result.Residual) > tolerance {
		return &domain.ReconciliationError{
			Components: components,
			Total:      result.TotalReturn,
			Tolerance:  tolerance,
		}
	}
	return nil
}
