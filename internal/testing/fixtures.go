package testing

import (
	"math/rand"
	"time"

	"github.com/aristath/riskflow/internal/domain"
)

// ReferencePackID is the generated id used by the reference pack fixture
const ReferencePackID = "PP_20240115_1"

// ReferenceAsOf is the as-of date of the reference pack
var ReferenceAsOf = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

// SecurityFixture describes a held security with known prices and factor betas
type SecurityFixture struct {
	Symbol   string
	Currency domain.Currency
	Price    float64
	Quantity float64
	Alpha    float64
	Betas    map[domain.Factor]float64
}

// Holding returns the fixture as a domain holding
func (s SecurityFixture) Holding() domain.Holding {
	return domain.Holding{Symbol: s.Symbol, Currency: s.Currency, Quantity: s.Quantity}
}

// NewReferenceSecurities returns the two-position reference portfolio: one USD and one EUR holding.
// Only the real-rate beta is non-zero, so a real-rate shock has a hand-computable effect.
func NewReferenceSecurities() []SecurityFixture {
	return []SecurityFixture{
		{
			Symbol:   "AAPL",
			Currency: domain.CurrencyUSD,
			Price:    200,
			Quantity: 10,
			Alpha:    0.0004,
			Betas: map[domain.Factor]float64{
				domain.FactorRealRate:     -2.0,
				domain.FactorInflation:    0,
				domain.FactorCreditSpread: 0,
				domain.FactorUSD:          0,
				domain.FactorEquity:       0,
			},
		},
		{
			Symbol:   "SAP",
			Currency: domain.CurrencyEUR,
			Price:    150,
			Quantity: 10,
			Alpha:    -0.0002,
			Betas: map[domain.Factor]float64{
				domain.FactorRealRate:     -1.5,
				domain.FactorInflation:    0,
				domain.FactorCreditSpread: 0,
				domain.FactorUSD:          0,
				domain.FactorEquity:       0,
			},
		},
	}
}

// ReferenceEURUSD is the EUR→USD rate of the reference pack
const ReferenceEURUSD = 1.10

// NewFactorHistory generates n daily observations per factor ending at end.
// The series are independent pseudo-random draws, so a regression on them is well conditioned.
func NewFactorHistory(seed int64, n int, end time.Time) map[domain.Factor][]domain.Observation {
	rng := rand.New(rand.NewSource(seed))
	dates := NewDates(n, end)
	history := make(map[domain.Factor][]domain.Observation, len(domain.DefaultFactors))
	for _, factor := range domain.DefaultFactors {
		series := make([]domain.Observation, n)
		for i := range series {
			series[i] = domain.Observation{Date: dates[i], Value: rng.NormFloat64() * 0.01}
		}
		history[factor] = series
	}
	return history
}

// NewSecurityHistory builds a security return series that is an exact linear function of the factors
func NewSecurityHistory(factors map[domain.Factor][]domain.Observation, alpha float64, betas map[domain.Factor]float64) []domain.Observation {
	base := factors[domain.DefaultFactors[0]]
	series := make([]domain.Observation, len(base))
	for i := range base {
		value := alpha
		for factor, beta := range betas {
			value += beta * factors[factor][i].Value
		}
		series[i] = domain.Observation{Date: base[i].Date, Value: value}
	}
	return series
}

// NewDates returns n consecutive calendar dates ending at end, oldest first
func NewDates(n int, end time.Time) []string {
	dates := make([]string, n)
	for i := 0; i < n; i++ {
		dates[i] = end.AddDate(0, 0, i-n+1).Format("2006-01-02")
	}
	return dates
}

// SeedReferencePack registers the reference pack on a mock reader: prices, EURUSD and
// n observations of factor and security history.
func SeedReferencePack(m *MockPackReader, n int) []SecurityFixture {
	securities := NewReferenceSecurities()
	m.AddPack(ReferencePackID, ReferenceAsOf)
	m.SetFXRate(ReferencePackID, domain.CurrencyEUR, domain.CurrencyUSD, ReferenceEURUSD)

	factors := NewFactorHistory(42, n, ReferenceAsOf)
	for factor, series := range factors {
		m.SetSeries(ReferencePackID, factor.SeriesID(), series)
	}
	for _, sec := range securities {
		m.SetPrice(ReferencePackID, sec.Symbol, sec.Price, sec.Currency)
		m.SetSeries(ReferencePackID, sec.Symbol, NewSecurityHistory(factors, sec.Alpha, sec.Betas))
	}
	return securities
}
