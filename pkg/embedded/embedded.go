// Package embedded provides the default pattern catalog and scenario library compiled
// into the binary.
package embedded

import (
	"embed"
)

// Locations inside Files
const (
	PatternsDir   = "patterns"
	ScenariosFile = "scenarios/default.yaml"
)

// Files contains the default documents:
//   - patterns/*.yaml - pattern definitions loaded into the catalog
//   - scenarios/default.yaml - the scenario library used by DaR
//
//go:embed patterns scenarios
var Files embed.FS

// Scenarios returns the default scenario library document
func Scenarios() ([]byte, error) {
	return Files.ReadFile(ScenariosFile)
}
