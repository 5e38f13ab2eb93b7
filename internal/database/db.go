// Package database opens the riskflow SQLite databases and applies their embedded schemas.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed schemas/*.sql
var schemas embed.FS

// schemaFiles maps database names to their schema files
var schemaFiles = map[string]string{
	"pricing":   "pricing_schema.sql",
	"graph":     "graph_schema.sql",
	"portfolio": "portfolio_schema.sql",
}

// DatabaseProfile selects durability settings
type DatabaseProfile string

const (
	// ProfileLedger is for append-only data that must survive power loss: graph nodes, lots, trades
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileStandard is for data that can be rebuilt from upstream: pricing packs
	ProfileStandard DatabaseProfile = "standard"
)

// DB is one SQLite database file with its profile
type DB struct {
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string // "pricing", "graph" or "portfolio"; selects the schema applied by Migrate
}

// New opens a database, creating its directory when needed
func New(cfg Config) (*DB, error) {
	// file: URIs are passed through untouched
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	switch cfg.Profile {
	case "":
		cfg.Profile = ProfileStandard
	case ProfileStandard, ProfileLedger:
	default:
		return nil, fmt.Errorf("unknown database profile %q for %s", cfg.Profile, cfg.Name)
	}

	conn, err := sql.Open("sqlite", connectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	// Pattern runs fan out reads across worker goroutines; SQLite serializes the writers
	conn.SetMaxOpenConns(16)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		name:    cfg.Name,
	}, nil
}

// connectionString builds the DSN with the profile's PRAGMAs
func connectionString(path string, profile DatabaseProfile) string {
	pragmas := []string{"journal_mode(WAL)"}

	if profile == ProfileLedger {
		// Fsync every commit; rows are never deleted so there is nothing to vacuum
		pragmas = append(pragmas, "synchronous(FULL)", "auto_vacuum(NONE)")
	} else {
		pragmas = append(pragmas, "synchronous(NORMAL)", "auto_vacuum(INCREMENTAL)", "temp_store(MEMORY)")
	}

	pragmas = append(pragmas,
		"foreign_keys(1)",
		"busy_timeout(5000)", // concurrent writers wait instead of failing with SQLITE_BUSY
		"cache_size(-32000)",
	)

	return path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection pool used by repositories
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name
func (db *DB) Name() string {
	return db.name
}

// Profile returns the database profile
func (db *DB) Profile() DatabaseProfile {
	return db.profile
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate applies the embedded schema for this database's name. Schemas only use
// CREATE ... IF NOT EXISTS, so Migrate runs on every startup.
func (db *DB) Migrate() error {
	schemaFile, ok := schemaFiles[db.name]
	if !ok {
		return nil
	}

	content, err := schemas.ReadFile("schemas/" + schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", schemaFile, err)
	}

	return WithTransaction(db.conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute schema %s for %s: %w", schemaFile, db.name, err)
		}
		return nil
	})
}

// QuickCheck pings the database
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WithTransaction runs fn in a transaction. The transaction commits when fn returns nil
// and rolls back when fn returns an error or panics; a panic is returned as an error.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
				return
			}
			err = fmt.Errorf("transaction failed: %w", err)
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	return fn(tx)
}
