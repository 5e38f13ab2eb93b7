// Package testing provides testing utilities and helpers for the riskflow project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/riskflow/internal/database"
)

// NewTestDB creates a temporary SQLite database for testing with automatic schema migration.
// Returns the database instance and a cleanup function that closes the connection.
// The cleanup function is idempotent and can be called multiple times safely.
//
// Supported schema names:
//   - "pricing" - applies pricing_schema.sql
//   - "graph" - applies graph_schema.sql
//   - "portfolio" - applies portfolio_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()
	return newTestDB(t, name, database.ProfileStandard)
}

// NewTestLedgerDB creates a temporary database with the ledger profile (append-only data)
func NewTestLedgerDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()
	return newTestDB(t, name, database.ProfileLedger)
}

func newTestDB(t *testing.T, name string, profile database.DatabaseProfile) (*database.DB, func()) {
	t.Helper()

	// Temporary files give each test its own database; ":memory:" would be per-connection
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			// Log error but don't fail test - cleanup should be idempotent
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	}
}
