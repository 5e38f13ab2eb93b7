package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/riskflow/internal/config"
	"github.com/aristath/riskflow/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the three databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	databases := []struct {
		target  **database.DB
		name    string
		profile database.DatabaseProfile
	}{
		// pricing.db - Immutable pricing packs once published
		{&container.PricingDB, "pricing", database.ProfileStandard},
		// graph.db - Append-only computed artifacts
		{&container.GraphDB, "graph", database.ProfileLedger},
		// portfolio.db - Tax lots and the trade journal
		{&container.PortfolioDB, "portfolio", database.ProfileLedger},
	}

	for _, def := range databases {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, def.name+".db"),
			Profile: def.profile,
			Name:    def.name,
		})
		if err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", def.name, err)
		}
		*def.target = db

		if err := db.Migrate(); err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
