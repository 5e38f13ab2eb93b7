// Package risk provides the risk computation primitives: factor regressions, portfolio
// exposure, scenario Distance-at-Risk and currency attribution. Every computation reads
// from a single pricing pack and fails explicitly when data is missing.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// BetaConfig controls the factor regression window
type BetaConfig struct {
	Window          int             // Trailing observations used in the regression
	MinObservations int             // Fewer aligned observations fail with InsufficientHistoryError
	Factors         []domain.Factor // Regression columns, in order
}

// BetaService computes and records security factor betas
type BetaService struct {
	packs domain.PackReader
	store graph.Store
	cfg   BetaConfig
	now   func() time.Time
	log   zerolog.Logger
}

// NewBetaService creates a new beta service. An empty factor list means the default factor set.
func NewBetaService(packs domain.PackReader, store graph.Store, cfg BetaConfig, log zerolog.Logger) *BetaService {
	if len(cfg.Factors) == 0 {
		cfg.Factors = domain.DefaultFactors
	}
	return &BetaService{
		packs: packs,
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   log.With().Str("service", "factor_betas").Logger(),
	}
}

// Factors returns the regression factor set
func (s *BetaService) Factors() []domain.Factor {
	return s.cfg.Factors
}

// Betas returns the factor betas of a security at a pack. A beta already recorded for the
// pack is reused; otherwise the regression runs and the result is recorded as a new node.
func (s *BetaService) Betas(ctx context.Context, symbol, packID string) (*domain.FactorBeta, error) {
	pack, err := s.packs.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}

	node, err := s.store.GetLatestForPack(ctx, graph.NodeFactorBeta, symbol, pack.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read recorded betas for %s: %w", symbol, err)
	}
	if node != nil {
		var beta domain.FactorBeta
		if err := json.Unmarshal(node.Payload, &beta); err != nil {
			return nil, fmt.Errorf("failed to decode recorded betas for %s: %w", symbol, err)
		}
		return &beta, nil
	}

	return s.compute(ctx, symbol, pack)
}

// Recompute runs the regression regardless of recorded results and records a new node.
// Earlier nodes are kept as history.
func (s *BetaService) Recompute(ctx context.Context, symbol, packID string) (*domain.FactorBeta, error) {
	pack, err := s.packs.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	return s.compute(ctx, symbol, pack)
}

func (s *BetaService) compute(ctx context.Context, symbol string, pack *domain.Pack) (*domain.FactorBeta, error) {
	defer utils.OperationTimer("factor regression "+symbol, s.log)()

	secSeries, err := s.packs.ReturnSeries(ctx, symbol, pack.ID)
	if err != nil {
		return nil, err
	}
	if len(secSeries) < s.cfg.MinObservations {
		return nil, &domain.InsufficientHistoryError{
			Symbol:       symbol,
			Observations: len(secSeries),
			Required:     s.cfg.MinObservations,
		}
	}

	factorSeries := make([]map[string]float64, len(s.cfg.Factors))
	for j, factor := range s.cfg.Factors {
		series, err := s.packs.ReturnSeries(ctx, factor.SeriesID(), pack.ID)
		if err != nil {
			return nil, err
		}
		if len(series) < s.cfg.MinObservations {
			return nil, &domain.InsufficientHistoryError{
				Symbol:       factor.SeriesID(),
				Observations: len(series),
				Required:     s.cfg.MinObservations,
			}
		}
		factorSeries[j] = byDate(series)
	}

	dates, y, columns := alignToDates(secSeries, factorSeries)
	if len(y) > s.cfg.Window {
		cut := len(y) - s.cfg.Window
		dates, y = dates[cut:], y[cut:]
		for j := range columns {
			columns[j] = columns[j][cut:]
		}
	}
	if len(y) < s.cfg.MinObservations {
		return nil, &domain.InsufficientHistoryError{
			Symbol:       symbol,
			Observations: len(y),
			Required:     s.cfg.MinObservations,
		}
	}

	fit, err := Regress(y, columns)
	if err != nil {
		return nil, fmt.Errorf("factor regression for %s: %w", symbol, err)
	}

	beta := &domain.FactorBeta{
		Symbol:       symbol,
		PackID:       pack.ID,
		Betas:        make(map[domain.Factor]float64, len(s.cfg.Factors)),
		Intercept:    fit.Intercept,
		RSquared:     fit.RSquared,
		Observations: fit.Observations,
		ComputedAt:   s.now().UTC(),
	}
	for j, factor := range s.cfg.Factors {
		beta.Betas[factor] = fit.Coefficients[j]
	}
	if start, err := time.Parse(dateLayout, dates[0]); err == nil {
		beta.WindowStart = start
	}
	if end, err := time.Parse(dateLayout, dates[len(dates)-1]); err == nil {
		beta.WindowEnd = end
	}

	s.record(ctx, beta)
	return beta, nil
}

// record appends the beta to the graph. A failed write loses only the cache entry.
func (s *BetaService) record(ctx context.Context, beta *domain.FactorBeta) {
	payload, err := json.Marshal(beta)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", beta.Symbol).Msg("Failed to encode factor betas")
		return
	}
	id, err := s.store.Put(ctx, graph.NodeFactorBeta, beta.Symbol, payload, beta.PackID)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", beta.Symbol).Msg("Failed to record factor betas")
		return
	}
	s.log.Debug().
		Int64("node_id", id).
		Str("symbol", beta.Symbol).
		Str("pack_id", beta.PackID).
		Float64("r_squared", beta.RSquared).
		Int("observations", beta.Observations).
		Msg("Recorded factor betas")
}

func byDate(series []domain.Observation) map[string]float64 {
	values := make(map[string]float64, len(series))
	for _, obs := range series {
		values[obs.Date] = obs.Value
	}
	return values
}

// alignToDates keeps only the security observations for which every factor has a value,
// preserving the security series order.
func alignToDates(security []domain.Observation, factors []map[string]float64) ([]string, []float64, [][]float64) {
	dates := make([]string, 0, len(security))
	y := make([]float64, 0, len(security))
	columns := make([][]float64, len(factors))
	for j := range columns {
		columns[j] = make([]float64, 0, len(security))
	}

	for _, obs := range security {
		row := make([]float64, len(factors))
		complete := true
		for j, values := range factors {
			v, ok := values[obs.Date]
			if !ok {
				complete = false
				break
			}
			row[j] = v
		}
		if !complete {
			continue
		}
		dates = append(dates, obs.Date)
		y = append(y, obs.Value)
		for j := range columns {
			columns[j] = append(columns[j], row[j])
		}
	}
	return dates, y, columns
}
