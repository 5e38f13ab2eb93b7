package risk

import (
	"testing"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultScenarios = `
scenarios:
  - name: real_rate_up_100
    description: Parallel +100bp move in real yields
    shocks:
      real_rate: 100
    samples:
      - {real_rate: 80}
      - {real_rate: 120, inflation: -20}
  - name: equity_crash
    shocks:
      equity: -1500
`

func TestLoadScenarios(t *testing.T) {
	lib, err := LoadScenarios(validation.New(), []byte(defaultScenarios))
	require.NoError(t, err)

	assert.Equal(t, []string{"equity_crash", "real_rate_up_100"}, lib.Names())

	scenario, err := lib.Get("real_rate_up_100")
	require.NoError(t, err)
	assert.Equal(t, 100.0, scenario.Shocks[domain.FactorRealRate])
	assert.Len(t, scenario.Vectors(), 3)
	assert.Equal(t, []domain.Factor{domain.FactorInflation, domain.FactorRealRate}, scenario.Factors())
}

func TestLoadScenarios_LaterDocumentOverrides(t *testing.T) {
	override := `
scenarios:
  - name: equity_crash
    shocks:
      equity: -3000
`
	lib, err := LoadScenarios(validation.New(), []byte(defaultScenarios), []byte(override))
	require.NoError(t, err)

	scenario, err := lib.Get("equity_crash")
	require.NoError(t, err)
	assert.Equal(t, -3000.0, scenario.Shocks[domain.FactorEquity])
	assert.Len(t, lib.Names(), 2)
}

func TestLoadScenarios_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown factor", "scenarios:\n  - name: x\n    shocks: {momentum: 10}\n"},
		{"no shocks", "scenarios:\n  - name: x\n"},
		{"missing name", "scenarios:\n  - shocks: {equity: 10}\n"},
		{"unknown field", "scenarios:\n  - name: x\n    shock: {equity: 10}\n"},
		{"duplicate", "scenarios:\n  - name: x\n    shocks: {equity: 1}\n  - name: x\n    shocks: {equity: 2}\n"},
		{"empty sample", "scenarios:\n  - name: x\n    shocks: {equity: 1}\n    samples:\n      - {}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenarios(validation.New(), []byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestScenarioLibrary_GetUnknown(t *testing.T) {
	lib, err := LoadScenarios(validation.New(), []byte(defaultScenarios))
	require.NoError(t, err)

	_, err = lib.Get("nope")

	var notFound *domain.ScenarioNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestScenario_Scaled(t *testing.T) {
	scenario := Scenario{
		Name:    "s",
		Shocks:  map[domain.Factor]float64{domain.FactorRealRate: 100},
		Samples: []map[domain.Factor]float64{{domain.FactorRealRate: 50}},
	}

	scaled := scenario.Scaled(2)

	assert.Equal(t, 200.0, scaled.Shocks[domain.FactorRealRate])
	assert.Equal(t, 100.0, scaled.Samples[0][domain.FactorRealRate])
	assert.Equal(t, "s x2", scaled.Name)
	assert.Equal(t, 100.0, scenario.Shocks[domain.FactorRealRate])
	assert.Equal(t, "s", scenario.Scaled(1).Name)
}
