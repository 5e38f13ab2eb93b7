package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	testingpkg "github.com/aristath/riskflow/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	startPackID = "PP_20240115_1"
	endPackID   = "PP_20240215_2"
)

func newAttributionPacks() *testingpkg.MockPackReader {
	packs := testingpkg.NewMockPackReader()
	packs.AddPack(startPackID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	packs.AddPack(endPackID, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	return packs
}

func TestAttribution_SingleHolding(t *testing.T) {
	packs := newAttributionPacks()
	packs.SetPrice(startPackID, "SAP", 150, domain.CurrencyEUR)
	packs.SetPrice(endPackID, "SAP", 165, domain.CurrencyEUR)
	packs.SetFXRate(startPackID, domain.CurrencyEUR, domain.CurrencyUSD, 1.10)
	packs.SetFXRate(endPackID, domain.CurrencyEUR, domain.CurrencyUSD, 1.21)

	holdings := testingpkg.NewMockHoldingsProvider()
	holdings.SetHoldings("main", []domain.Holding{{Symbol: "SAP", Currency: domain.CurrencyEUR, Quantity: 10}})
	svc := NewAttributionService(packs, holdings, BasisPoint, zerolog.Nop())

	result, err := svc.Attribute(context.Background(), "main", startPackID, endPackID, domain.CurrencyUSD)
	require.NoError(t, err)

	assert.InDelta(t, 0.10, result.LocalReturn, 1e-12)
	assert.InDelta(t, 0.10, result.CurrencyReturn, 1e-12)
	assert.InDelta(t, 0.01, result.Interaction, 1e-12)
	assert.InDelta(t, 0.21, result.TotalReturn, 1e-12)
	assert.InDelta(t, 0.0, result.Residual, 1e-12)
	require.Len(t, result.Holdings, 1)
	assert.InDelta(t, 0.21, result.Holdings[0].TotalReturn, 1e-12)
	assert.Equal(t, startPackID, result.StartPackID)
	assert.Equal(t, endPackID, result.PackID)
}

func TestAttribution_BaseCurrencyHoldingHasNoCurrencyReturn(t *testing.T) {
	packs := newAttributionPacks()
	packs.SetPrice(startPackID, "AAPL", 200, domain.CurrencyUSD)
	packs.SetPrice(endPackID, "AAPL", 180, domain.CurrencyUSD)

	svc := NewAttributionService(packs, testingpkg.NewMockHoldingsProvider(), BasisPoint, zerolog.Nop())
	result, err := svc.AttributeHoldings(context.Background(), "main",
		[]domain.Holding{{Symbol: "AAPL", Currency: domain.CurrencyUSD, Quantity: 3}},
		startPackID, endPackID, domain.CurrencyUSD)
	require.NoError(t, err)

	assert.InDelta(t, -0.10, result.LocalReturn, 1e-12)
	assert.Equal(t, 0.0, result.CurrencyReturn)
	assert.Equal(t, 0.0, result.Interaction)
	assert.InDelta(t, -0.10, result.TotalReturn, 1e-12)
}

func TestAttribution_ReconcilesAcrossCurrencies(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	currencies := []domain.Currency{domain.CurrencyEUR, domain.CurrencyGBP, domain.CurrencyJPY, domain.CurrencyCHF, domain.CurrencyUSD}

	for trial := 0; trial < 500; trial++ {
		packs := newAttributionPacks()

		// Four non-base pairs, JPY stored as USDJPY to exercise the inverse lookup
		for _, cur := range currencies[:4] {
			start := 0.5 + rng.Float64()
			end := start * (0.8 + 0.4*rng.Float64())
			if cur == domain.CurrencyJPY {
				packs.SetFXRate(startPackID, domain.CurrencyUSD, cur, 100*start)
				packs.SetFXRate(endPackID, domain.CurrencyUSD, cur, 100*end)
				continue
			}
			packs.SetFXRate(startPackID, cur, domain.CurrencyUSD, start)
			packs.SetFXRate(endPackID, cur, domain.CurrencyUSD, end)
		}

		n := 1 + rng.Intn(5)
		holdings := make([]domain.Holding, n)
		for i := range holdings {
			symbol := fmt.Sprintf("SEC%d", i)
			holdings[i] = domain.Holding{
				Symbol:   symbol,
				Currency: currencies[rng.Intn(len(currencies))],
				Quantity: float64(1 + rng.Intn(1000)),
			}
			p0 := 1 + rng.Float64()*500
			packs.SetPrice(startPackID, symbol, p0, holdings[i].Currency)
			packs.SetPrice(endPackID, symbol, p0*(0.5+rng.Float64()), holdings[i].Currency)
		}

		svc := NewAttributionService(packs, testingpkg.NewMockHoldingsProvider(), BasisPoint, zerolog.Nop())
		result, err := svc.AttributeHoldings(context.Background(), "synthetic", holdings, startPackID, endPackID, domain.CurrencyUSD)
		require.NoError(t, err, "trial %d", trial)

		sum := result.LocalReturn + result.CurrencyReturn + result.Interaction
		assert.LessOrEqual(t, math.Abs(sum-result.TotalReturn), BasisPoint, "trial %d", trial)

		var weights float64
		for _, h := range result.Holdings {
			weights += h.Weight
		}
		assert.InDelta(t, 1.0, weights, 1e-12)
	}
}

func TestAttribution_Failures(t *testing.T) {
	t.Run("end before start", func(t *testing.T) {
		packs := newAttributionPacks()
		packs.SetPrice(startPackID, "AAPL", 1, domain.CurrencyUSD)
		packs.SetPrice(endPackID, "AAPL", 1, domain.CurrencyUSD)
		svc := NewAttributionService(packs, testingpkg.NewMockHoldingsProvider(), BasisPoint, zerolog.Nop())

		_, err := svc.AttributeHoldings(context.Background(), "main",
			[]domain.Holding{{Symbol: "AAPL", Currency: domain.CurrencyUSD, Quantity: 1}},
			endPackID, startPackID, domain.CurrencyUSD)

		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("price missing at end pack", func(t *testing.T) {
		packs := newAttributionPacks()
		packs.SetPrice(startPackID, "AAPL", 1, domain.CurrencyUSD)
		svc := NewAttributionService(packs, testingpkg.NewMockHoldingsProvider(), BasisPoint, zerolog.Nop())

		_, err := svc.AttributeHoldings(context.Background(), "main",
			[]domain.Holding{{Symbol: "AAPL", Currency: domain.CurrencyUSD, Quantity: 1}},
			startPackID, endPackID, domain.CurrencyUSD)

		var priceErr *domain.PriceNotFoundError
		require.ErrorAs(t, err, &priceErr)
		assert.Equal(t, endPackID, priceErr.PackID)
	})

	t.Run("holdings provider error", func(t *testing.T) {
		holdings := testingpkg.NewMockHoldingsProvider()
		holdings.SetError(&domain.ValidationError{Field: "portfolio_id", Reason: "unknown"})
		svc := NewAttributionService(newAttributionPacks(), holdings, BasisPoint, zerolog.Nop())

		_, err := svc.Attribute(context.Background(), "nope", startPackID, endPackID, domain.CurrencyUSD)

		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

func TestReconcile(t *testing.T) {
	result := &domain.CurrencyAttributionResult{
		LocalReturn:    0.05,
		CurrencyReturn: 0.02,
		Interaction:    0.001,
		TotalReturn:    0.071,
	}
	require.NoError(t, Reconcile(result, BasisPoint))
	assert.InDelta(t, 0.0, result.Residual, 1e-15)

	result.TotalReturn = 0.0715
	err := Reconcile(result, BasisPoint)

	var reconciliation *domain.ReconciliationError
	require.ErrorAs(t, err, &reconciliation)
	assert.InDelta(t, 0.071, reconciliation.Components, 1e-15)
	assert.Equal(t, domain.KindComputation, domain.KindOf(err))
}
