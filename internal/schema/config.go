package schema

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/poslake-io/poslake/internal/config"
)

// Registry backend names accepted in configuration.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Defaults for the file-backed registry, relative to the lake root.
// "esquemas" mirrors the lake's folder layout for schema artifacts.
const (
	DefaultRegistryFile   = "esquemas/registro.json"
	DefaultRegistrySQLite = "esquemas/registro.db"
)

var (
	// ErrUnknownBackend is returned for a backend name that is not one of
	// memory, file, sqlite, postgres.
	ErrUnknownBackend = errors.New("unknown registry backend")

	// ErrDatabaseURLEmpty is returned when the postgres backend is selected
	// without a connection string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")
)

// StoreConfig selects and parameterizes the registry persistence backend.
type StoreConfig struct {
	// Backend is one of memory, file, sqlite, postgres.
	Backend string

	// Path locates the registry file or SQLite database for the file and
	// sqlite backends. Relative paths are resolved against the lake root.
	Path string

	// databaseURL is the PostgreSQL connection string for the postgres
	// backend. Private: it may carry credentials.
	databaseURL string
}

// LoadStoreConfig loads registry store configuration from environment
// variables with fallback to the file backend.
func LoadStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:     strings.ToLower(config.GetEnvStr("POSLAKE_REGISTRY_BACKEND", BackendFile)),
		Path:        config.GetEnvStr("POSLAKE_REGISTRY_PATH", ""),
		databaseURL: config.GetEnvStr("DATABASE_URL", ""),
	}
}

// Validate checks that the selected backend is usable.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
		return nil
	case BackendPostgres:
		if strings.TrimSpace(c.databaseURL) == "" {
			return ErrDatabaseURLEmpty
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
}

// OpenStore opens the configured backend. Relative file paths are resolved
// against lakeRoot so the registry travels with the lake by default.
func (c *StoreConfig) OpenStore(lakeRoot string) (Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(c.resolvePath(lakeRoot, DefaultRegistryFile))
	case BackendSQLite:
		return NewSQLiteStore(c.resolvePath(lakeRoot, DefaultRegistrySQLite))
	case BackendPostgres:
		return NewPostgresStore(c.databaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
}

func (c *StoreConfig) resolvePath(lakeRoot, defaultPath string) string {
	path := c.Path
	if path == "" {
		path = defaultPath
	}

	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(lakeRoot, path)
}
