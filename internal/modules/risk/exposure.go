package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/rs/zerolog"
)

// ExposureService computes market-weighted portfolio factor exposures at a pack
type ExposureService struct {
	packs    domain.PackReader
	holdings domain.HoldingsProvider
	betas    *BetaService
	log      zerolog.Logger
}

// NewExposureService creates a new exposure service
func NewExposureService(packs domain.PackReader, holdings domain.HoldingsProvider, betas *BetaService, log zerolog.Logger) *ExposureService {
	return &ExposureService{
		packs:    packs,
		holdings: holdings,
		betas:    betas,
		log:      log.With().Str("service", "factor_exposure").Logger(),
	}
}

// Exposure loads a portfolio's holdings and computes its exposure at the pack
func (s *ExposureService) Exposure(ctx context.Context, portfolioID, packID string, base domain.Currency) (*domain.PortfolioExposure, error) {
	holdings, err := s.holdings.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings of %s: %w", portfolioID, err)
	}
	return s.ExposureOf(ctx, portfolioID, holdings, packID, base)
}

// ExposureOf computes the exposure of the given holdings. The exposure to each factor is
// the sum of holding betas weighted by base-currency market value.
func (s *ExposureService) ExposureOf(ctx context.Context, portfolioID string, holdings []domain.Holding, packID string, base domain.Currency) (*domain.PortfolioExposure, error) {
	pack, err := s.packs.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}

	weighted, nav, err := Weigh(ctx, s.packs, holdings, pack.ID, base)
	if err != nil {
		return nil, err
	}

	exposure := &domain.PortfolioExposure{
		PortfolioID:  portfolioID,
		PackID:       pack.ID,
		BaseCurrency: base,
		NAV:          nav,
		Holdings:     weighted,
		Betas:        make(map[string]domain.FactorBeta, len(weighted)),
		Exposure:     make(map[domain.Factor]float64, len(s.betas.Factors())),
	}

	for _, h := range weighted {
		beta, err := s.betas.Betas(ctx, h.Symbol, pack.ID)
		if err != nil {
			return nil, err
		}
		for _, factor := range s.betas.Factors() {
			b, ok := beta.Betas[factor]
			if !ok {
				return nil, &domain.MissingBetaError{Symbol: h.Symbol, Factor: factor, PackID: pack.ID}
			}
			exposure.Exposure[factor] += h.Weight * b
		}
		exposure.Betas[h.Symbol] = *beta
	}

	s.log.Debug().
		Str("portfolio_id", portfolioID).
		Str("pack_id", pack.ID).
		Int("holdings", len(weighted)).
		Float64("nav", nav).
		Msg("Computed portfolio exposure")

	return exposure, nil
}

// Weigh values holdings in the base currency at a pack and returns them with their weights
// and the total value. Holdings are returned sorted by symbol. Prices are converted from
// their quote currency, which must match the currency of the holding's lots.
func Weigh(ctx context.Context, packs domain.PackReader, holdings []domain.Holding, packID string, base domain.Currency) ([]domain.WeightedHolding, float64, error) {
	if len(holdings) == 0 {
		return nil, 0, &domain.ValidationError{Field: "holdings", Reason: "portfolio has no open holdings"}
	}

	weighted := make([]domain.WeightedHolding, 0, len(holdings))
	var nav float64
	for _, h := range holdings {
		if h.Quantity <= 0 {
			return nil, 0, &domain.ValidationError{Field: "holdings." + h.Symbol, Reason: "quantity must be positive"}
		}
		price, quoted, err := packs.PriceWithCurrency(ctx, h.Symbol, packID)
		if err != nil {
			return nil, 0, err
		}
		if quoted != h.Currency {
			return nil, 0, &domain.ValidationError{
				Field:  "holdings." + h.Symbol,
				Reason: fmt.Sprintf("held in %s but quoted in %s at pack %s", h.Currency, quoted, packID),
			}
		}
		rate, err := packs.FXRate(ctx, quoted, base, packID)
		if err != nil {
			return nil, 0, err
		}
		value := h.Quantity * price * rate
		weighted = append(weighted, domain.WeightedHolding{
			Holding:   h,
			Price:     price,
			FXRate:    rate,
			BaseValue: value,
		})
		nav += value
	}
	if nav <= 0 {
		return nil, 0, &domain.ComputationError{Op: "weigh holdings", Err: fmt.Errorf("portfolio value %.6f is not positive", nav)}
	}

	for i := range weighted {
		weighted[i].Weight = weighted[i].BaseValue / nav
	}
	sort.Slice(weighted, func(i, j int) bool { return weighted[i].Symbol < weighted[j].Symbol })
	return weighted, nav, nil
}
