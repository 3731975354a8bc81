package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/poslake-io/poslake/internal/config"
)

// Configuration errors.
var (
	ErrDatabaseURLRequired   = errors.New("DATABASE_URL cannot be empty")
	ErrMigrationsDirMissing  = errors.New("migrations directory does not exist")
	ErrMigrationTableMissing = errors.New("MIGRATION_TABLE cannot be empty")
)

// Config holds the migration tool configuration, loaded from the
// environment.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string for the schema
	// registry database.
	DatabaseURL string

	// MigrationsPath is the directory holding the *.up.sql / *.down.sql
	// files.
	MigrationsPath string

	// MigrationTable tracks applied migrations.
	MigrationTable string
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationsPath: config.GetEnvStr("MIGRATIONS_PATH", "./migrations"),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and resolves the migrations path.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableMissing
	}

	absPath, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	c.MigrationsPath = absPath

	if _, err := os.Stat(c.MigrationsPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMigrationsDirMissing, c.MigrationsPath)
	}

	return nil
}

// String returns a log-safe representation with credentials masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationsPath: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationsPath, c.MigrationTable)
}

// maskDatabaseURL hides the password in a connection URL for logging.
func maskDatabaseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		// Not URL-shaped: don't risk leaking credentials.
		return "<unparseable>"
	}

	return parsed.Redacted()
}
