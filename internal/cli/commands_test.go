package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--data-dir", t.TempDir()))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Equal(t, "riskflow v"+Version+"\n", out)
}

func TestPatternsList(t *testing.T) {
	out, err := execute(t, "patterns", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	for _, id := range []string{"currency_attribution", "factor_exposure", "rate_shock", "scenario_stress"} {
		assert.Contains(t, out, id)
	}
}

func TestPatternsValidate(t *testing.T) {
	t.Run("embedded catalog", func(t *testing.T) {
		out, err := execute(t, "patterns", "validate")

		require.NoError(t, err)
		assert.Contains(t, out, "4 patterns OK")
	})

	t.Run("extra directory", func(t *testing.T) {
		dir := t.TempDir()
		writePattern(t, dir, "scenario_only.yaml", `
id: scenario_only
version: "1"
steps:
  - capability: risk.scenario
    inputs:
      name: {value: dollar_rally}
    as: scenario
output:
  list: [scenario]
`)

		out, err := execute(t, "patterns", "validate", dir)

		require.NoError(t, err)
		assert.Contains(t, out, "5 patterns OK")
	})

	t.Run("unbound required input", func(t *testing.T) {
		dir := t.TempDir()
		writePattern(t, dir, "no_name.yaml", `
id: no_name
version: "1"
steps:
  - capability: risk.scenario
    as: scenario
output:
  list: [scenario]
`)

		_, err := execute(t, "patterns", "validate", dir)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no_name")
	})
}

func TestRun(t *testing.T) {
	t.Run("malformed query", func(t *testing.T) {
		_, err := execute(t, "run", "rate_shock", "--query", "not json")

		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("unknown pattern", func(t *testing.T) {
		_, err := execute(t, "run", "nope")

		var notFound *domain.PatternNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("pattern without stored data", func(t *testing.T) {
		out, err := execute(t, "run", "factor_exposure", "--query", `{"portfolio_id":"main","pack_id":"2024-01-15"}`)

		assert.Empty(t, out)
		var notFound *domain.PackNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestRun_PrintsResult(t *testing.T) {
	dir := t.TempDir()
	writePattern(t, dir, "scenario_only.yaml", `
id: scenario_only
version: "1"
steps:
  - capability: risk.scenario
    inputs:
      name: {ctx: scenario}
      scale: {value: 2}
    as: scenario
output:
  mapping:
    doubled: scenario
`)
	cfgPath := filepath.Join(t.TempDir(), "riskflow.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[engine]\npatterns_dir = \""+filepath.ToSlash(dir)+"\"\nmax_concurrency = 2\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "run", "scenario_only", "--query", `{"scenario":"real_rate_up_100"}`)

	require.NoError(t, err)
	var printed struct {
		PatternID string `json:"pattern_id"`
		Output    struct {
			Doubled struct {
				Name   string             `json:"name"`
				Shocks map[string]float64 `json:"shocks_bp"`
			} `json:"doubled"`
		} `json:"output"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Equal(t, "scenario_only", printed.PatternID)
	assert.Equal(t, 200.0, printed.Output.Doubled.Shocks["real_rate"])
}

func writePattern(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
