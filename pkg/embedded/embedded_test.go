package embedded

import (
	"testing"

	"github.com/aristath/riskflow/internal/modules/risk"
	"github.com/aristath/riskflow/internal/patterns"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPatternsLoad(t *testing.T) {
	loaded, err := patterns.LoadFS(validation.New(), Files, PatternsDir)
	require.NoError(t, err)

	catalog, err := patterns.NewCatalog(loaded...)
	require.NoError(t, err)
	assert.Equal(t, []string{"currency_attribution", "factor_exposure", "rate_shock", "scenario_stress"}, catalog.IDs())

	matched := catalog.Match("Run a stress test on my book")
	require.Len(t, matched, 1)
	assert.Equal(t, "scenario_stress", matched[0].ID)
}

func TestDefaultScenariosLoad(t *testing.T) {
	doc, err := Scenarios()
	require.NoError(t, err)

	library, err := risk.LoadScenarios(validation.New(), doc)
	require.NoError(t, err)
	assert.Contains(t, library.Names(), "real_rate_up_100")

	scenario, err := library.Get("equity_drawdown")
	require.NoError(t, err)
	assert.Len(t, scenario.Vectors(), 5)
}
