package testing

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/riskflow/internal/domain"
)

// MockPackReader is an in-memory implementation of domain.PackReader for testing.
// It fails closed exactly like the real service: every absent value is an error.
type MockPackReader struct {
	mu     sync.RWMutex
	packs  map[string]*domain.Pack
	prices map[string]map[string]quote
	fx     map[string]map[[2]domain.Currency]float64
	series map[string]map[string][]domain.Observation
	err    error
}

// NewMockPackReader creates a new mock pack reader
func NewMockPackReader() *MockPackReader {
	return &MockPackReader{
		packs:  make(map[string]*domain.Pack),
		prices: make(map[string]map[string]quote),
		fx:     make(map[string]map[[2]domain.Currency]float64),
		series: make(map[string]map[string][]domain.Observation),
	}
}

// AddPack registers a ready, published pack under its id
func (m *MockPackReader) AddPack(packID string, asOf time.Time) *domain.Pack {
	m.mu.Lock()
	defer m.mu.Unlock()
	published := asOf.Add(18 * time.Hour)
	pack := &domain.Pack{
		ID:          packID,
		AsOf:        asOf,
		Status:      domain.PackReady,
		CreatedAt:   asOf,
		PublishedAt: &published,
	}
	m.packs[packID] = pack
	return pack
}

type quote struct {
	price    float64
	currency domain.Currency
}

// SetPrice sets a symbol's price in a pack and the currency it is quoted in
func (m *MockPackReader) SetPrice(packID, symbol string, price float64, currency domain.Currency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prices[packID] == nil {
		m.prices[packID] = make(map[string]quote)
	}
	m.prices[packID][symbol] = quote{price: price, currency: currency}
}

// SetFXRate sets the rate as units of quote per one unit of base
func (m *MockPackReader) SetFXRate(packID string, base, quote domain.Currency, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fx[packID] == nil {
		m.fx[packID] = make(map[[2]domain.Currency]float64)
	}
	m.fx[packID][[2]domain.Currency{base, quote}] = rate
}

// SetSeries sets a return series in a pack
func (m *MockPackReader) SetSeries(packID, seriesID string, observations []domain.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.series[packID] == nil {
		m.series[packID] = make(map[string][]domain.Observation)
	}
	m.series[packID][seriesID] = observations
}

// SetError makes every call fail with err
func (m *MockPackReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// GetPack returns a registered pack
func (m *MockPackReader) GetPack(ctx context.Context, packID string) (*domain.Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	pack, ok := m.packs[packID]
	if !ok {
		return nil, &domain.PackNotFoundError{PackID: packID}
	}
	copied := *pack
	return &copied, nil
}

// GetLatestPack returns the most recently published registered pack
func (m *MockPackReader) GetLatestPack(ctx context.Context) (*domain.Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var latest *domain.Pack
	for _, pack := range m.packs {
		if !pack.Usable() {
			continue
		}
		if latest == nil || pack.PublishedAt.After(*latest.PublishedAt) ||
			(pack.PublishedAt.Equal(*latest.PublishedAt) && pack.ID > latest.ID) {
			latest = pack
		}
	}
	if latest == nil {
		return nil, &domain.PackNotFoundError{Reason: "no published pack exists"}
	}
	copied := *latest
	return &copied, nil
}

// PriceWithCurrency returns a symbol's price and quote currency
func (m *MockPackReader) PriceWithCurrency(ctx context.Context, symbol, packID string) (float64, domain.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, "", m.err
	}
	q, ok := m.prices[packID][symbol]
	if !ok {
		return 0, "", &domain.PriceNotFoundError{Symbol: symbol, PackID: packID}
	}
	return q.price, q.currency, nil
}

// FXRate returns units of to per one unit of from, using the inverse pair when needed
func (m *MockPackReader) FXRate(ctx context.Context, from, to domain.Currency, packID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	if from == to {
		return 1, nil
	}
	if rate, ok := m.fx[packID][[2]domain.Currency{from, to}]; ok {
		return rate, nil
	}
	if rate, ok := m.fx[packID][[2]domain.Currency{to, from}]; ok {
		return 1 / rate, nil
	}
	return 0, &domain.PriceNotFoundError{Symbol: string(from) + string(to), PackID: packID}
}

// ReturnSeries returns a copy of a stored series, or an empty slice
func (m *MockPackReader) ReturnSeries(ctx context.Context, seriesID, packID string) ([]domain.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Observation{}, m.series[packID][seriesID]...), nil
}

// MockHoldingsProvider is a mock implementation of domain.HoldingsProvider for testing
type MockHoldingsProvider struct {
	mu       sync.RWMutex
	holdings map[string][]domain.Holding
	calls    int
	err      error
}

// NewMockHoldingsProvider creates a new mock holdings provider
func NewMockHoldingsProvider() *MockHoldingsProvider {
	return &MockHoldingsProvider{holdings: make(map[string][]domain.Holding)}
}

// SetHoldings sets the holdings of a portfolio
func (m *MockHoldingsProvider) SetHoldings(portfolioID string, holdings []domain.Holding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings[portfolioID] = holdings
}

// SetError sets the error to return
func (m *MockHoldingsProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Holdings was called
func (m *MockHoldingsProvider) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Holdings returns the holdings of a portfolio
func (m *MockHoldingsProvider) Holdings(ctx context.Context, portfolioID string) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Holding{}, m.holdings[portfolioID]...), nil
}
