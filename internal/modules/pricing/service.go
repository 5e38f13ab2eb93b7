// Package pricing provides the pricing pack service: resolution, freshness checks and
// fail-closed price, FX and return series lookups against immutable packs.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/rs/zerolog"
)

// PriorPriceConfidence is the confidence attached to a price borrowed from an earlier pack
const PriorPriceConfidence = 0.5

// Estimate is a degraded value tagged with where it came from
type Estimate struct {
	Value      float64           `json:"value"`
	Provenance domain.Provenance `json:"provenance"`
}

// Service resolves pricing packs and serves lookups from them.
// Every read goes through a usable (ready, published) pack; nothing is substituted implicitly.
type Service struct {
	repo      *Repository
	threshold time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a new pricing pack service
func NewService(repo *Repository, stalenessThreshold time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		threshold: stalenessThreshold,
		now:       time.Now,
		log:       log.With().Str("service", "pricing_pack").Logger(),
	}
}

// Threshold returns the configured freshness threshold
func (s *Service) Threshold() time.Duration {
	return s.threshold
}

// GetPack resolves a pack identifier to a usable pack.
// A generated id names exactly one pack; a date names the most recently published ready
// pack with that as-of date.
func (s *Service) GetPack(ctx context.Context, packID string) (*domain.Pack, error) {
	parsed, err := ParsePackID(packID)
	if err != nil {
		return nil, err
	}

	switch parsed.Form {
	case FormGenerated:
		pack, err := s.repo.GetByID(ctx, packID)
		if err != nil {
			return nil, err
		}
		if pack == nil {
			return nil, &domain.PackNotFoundError{PackID: packID}
		}
		switch pack.Status {
		case domain.PackBuilding:
			return nil, &domain.PackNotFoundError{PackID: packID, Reason: "pack is still building"}
		case domain.PackStale:
			return nil, &domain.PackNotFoundError{PackID: packID, Reason: "pack was superseded"}
		}
		if !pack.Usable() {
			return nil, &domain.PackNotFoundError{PackID: packID, Reason: "pack is not published"}
		}
		return pack, nil

	default:
		pack, err := s.repo.LatestReadyForDate(ctx, parsed.AsOf.Format(DateLayout))
		if err != nil {
			return nil, err
		}
		if pack == nil {
			return nil, &domain.PackNotFoundError{PackID: packID, Reason: "no published pack for as-of date"}
		}
		return pack, nil
	}
}

// GetLatestPack returns the most recently published ready pack
func (s *Service) GetLatestPack(ctx context.Context) (*domain.Pack, error) {
	pack, err := s.repo.LatestReady(ctx)
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, &domain.PackNotFoundError{Reason: "no published pack exists"}
	}
	return pack, nil
}

// RequireFresh returns the pack unchanged when it was published within the threshold
func (s *Service) RequireFresh(pack *domain.Pack) (*domain.Pack, error) {
	if !pack.Usable() {
		return nil, &domain.PackNotFoundError{PackID: packIDOf(pack), Reason: "pack is not usable"}
	}
	age := pack.Age(s.now())
	if age > s.threshold {
		return nil, &domain.PackStaleError{PackID: pack.ID, Age: age, Threshold: s.threshold}
	}
	return pack, nil
}

// AllowStale is the explicit degraded path: it accepts a pack past the freshness threshold
// and reports the staleness in the returned provenance.
func (s *Service) AllowStale(pack *domain.Pack) (*domain.Pack, domain.Provenance, error) {
	if !pack.Usable() {
		return nil, domain.Provenance{}, &domain.PackNotFoundError{PackID: packIDOf(pack), Reason: "pack is not usable"}
	}

	source := "pricing_pack:" + pack.ID
	age := pack.Age(s.now())
	if age <= s.threshold {
		return pack, domain.Computed(source), nil
	}

	s.log.Warn().
		Str("pack_id", pack.ID).
		Dur("age", age).
		Dur("threshold", s.threshold).
		Msg("Using stale pricing pack")

	return pack, domain.Provenance{
		Source:     source,
		Degraded:   true,
		Confidence: float64(s.threshold) / float64(age),
		Limitations: []string{
			fmt.Sprintf("pricing pack %s was published %s ago, beyond the %s freshness threshold",
				pack.ID, age.Round(time.Minute), s.threshold),
		},
	}, nil
}

// PriceWithCurrency returns a symbol's price together with the currency it is quoted in
func (s *Service) PriceWithCurrency(ctx context.Context, symbol, packID string) (float64, domain.Currency, error) {
	pack, err := s.GetPack(ctx, packID)
	if err != nil {
		return 0, "", err
	}
	price, currency, found, err := s.repo.Price(ctx, pack.ID, symbol)
	if err != nil {
		return 0, "", err
	}
	if !found {
		return 0, "", &domain.PriceNotFoundError{Symbol: symbol, PackID: pack.ID}
	}
	return price, currency, nil
}

// FXRate returns how many units of to one unit of from costs in the pack.
// The inverse pair is used when only that direction is stored.
func (s *Service) FXRate(ctx context.Context, from, to domain.Currency, packID string) (float64, error) {
	pack, err := s.GetPack(ctx, packID)
	if err != nil {
		return 0, err
	}
	if from == to {
		return 1.0, nil
	}

	rate, found, err := s.repo.FXRate(ctx, pack.ID, from, to)
	if err != nil {
		return 0, err
	}
	if found {
		return rate, nil
	}

	inverse, found, err := s.repo.FXRate(ctx, pack.ID, to, from)
	if err != nil {
		return 0, err
	}
	if found {
		return 1.0 / inverse, nil
	}

	return 0, &domain.PriceNotFoundError{Symbol: string(from) + "/" + string(to), PackID: pack.ID}
}

// ReturnSeries returns the return history stored with the pack, oldest first.
// An unknown series yields an empty slice; callers decide whether that is enough history.
func (s *Service) ReturnSeries(ctx context.Context, seriesID, packID string) ([]domain.Observation, error) {
	pack, err := s.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	return s.repo.ReturnSeries(ctx, pack.ID, seriesID)
}

// PriceOrPrior is the explicit degraded lookup: when the pack has no price for the symbol
// it borrows the price from the most recent earlier ready pack and says so in the provenance.
func (s *Service) PriceOrPrior(ctx context.Context, symbol, packID string) (Estimate, error) {
	pack, err := s.GetPack(ctx, packID)
	if err != nil {
		return Estimate{}, err
	}

	price, _, found, err := s.repo.Price(ctx, pack.ID, symbol)
	if err != nil {
		return Estimate{}, err
	}
	if found {
		return Estimate{Value: price, Provenance: domain.Computed("pricing_pack:" + pack.ID)}, nil
	}

	prior, priorPack, found, err := s.repo.PriorPrice(ctx, symbol, pack.AsOf.Format(DateLayout))
	if err != nil {
		return Estimate{}, err
	}
	if !found {
		return Estimate{}, &domain.PriceNotFoundError{Symbol: symbol, PackID: pack.ID}
	}

	s.log.Warn().
		Str("symbol", symbol).
		Str("pack_id", pack.ID).
		Str("prior_pack_id", priorPack.ID).
		Msg("Serving price from an earlier pack")

	return Estimate{
		Value: prior,
		Provenance: domain.Provenance{
			Source:     "pricing_pack:" + priorPack.ID,
			Degraded:   true,
			Confidence: PriorPriceConfidence,
			Limitations: []string{
				fmt.Sprintf("no price for %s in pack %s; value taken from pack %s as of %s",
					symbol, pack.ID, priorPack.ID, priorPack.AsOf.Format(DateLayout)),
			},
		},
	}, nil
}

// List returns recent packs in any status, for inspection
func (s *Service) List(ctx context.Context, limit int) ([]domain.Pack, error) {
	return s.repo.List(ctx, limit)
}

func packIDOf(pack *domain.Pack) string {
	if pack == nil {
		return ""
	}
	return pack.ID
}
