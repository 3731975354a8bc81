package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore persists the schema version history in an embedded SQLite
// database. Alternative to FileStore when the history grows beyond what a
// rewritten-on-every-append JSON document handles comfortably.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_versions (
	endpoint      TEXT NOT NULL,
	version_major INTEGER NOT NULL,
	version_minor INTEGER NOT NULL,
	fields        TEXT NOT NULL,
	registered_at TIMESTAMP NOT NULL,
	PRIMARY KEY (endpoint, version_major, version_minor)
);
`

// NewSQLiteStore opens (or creates) a SQLite-backed store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Latest returns the most recent entry for endpoint.
func (s *SQLiteStore) Latest(ctx context.Context, endpoint string) (VersionEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT endpoint, version_major, version_minor, fields, registered_at
		FROM schema_versions
		WHERE endpoint = ?
		ORDER BY version_major DESC, version_minor DESC
		LIMIT 1
	`, endpoint)

	return scanEntry(row)
}

// Get returns the entry for (endpoint, version).
func (s *SQLiteStore) Get(ctx context.Context, endpoint string, version Version) (VersionEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT endpoint, version_major, version_minor, fields, registered_at
		FROM schema_versions
		WHERE endpoint = ? AND version_major = ? AND version_minor = ?
	`, endpoint, version.Major, version.Minor)

	return scanEntry(row)
}

// Append adds a new entry, enforcing the strictly increasing version sequence.
func (s *SQLiteStore) Append(ctx context.Context, entry VersionEntry) error {
	latest, found, err := s.Latest(ctx, entry.Endpoint)
	if err != nil {
		return err
	}

	if found && entry.Version.Compare(latest.Version) <= 0 {
		return fmt.Errorf("%w: %s %s does not extend %s",
			ErrVersionConflict, entry.Endpoint, entry.Version, latest.Version)
	}

	fields := append([]string(nil), entry.Fields...)
	sort.Strings(fields)

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode field set: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schema_versions (endpoint, version_major, version_minor, fields, registered_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Endpoint, entry.Version.Major, entry.Version.Minor, string(fieldsJSON), entry.RegisteredAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	return nil
}

// Versions returns the endpoint's full history in ascending version order.
func (s *SQLiteStore) Versions(ctx context.Context, endpoint string) ([]VersionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, version_major, version_minor, fields, registered_at
		FROM schema_versions
		WHERE endpoint = ?
		ORDER BY version_major ASC, version_minor ASC
	`, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema versions: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	return collectEntries(rows)
}

// Endpoints returns all registered endpoints, sorted.
func (s *SQLiteStore) Endpoints(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT endpoint FROM schema_versions ORDER BY endpoint ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var endpoints []string

	for rows.Next() {
		var endpoint string
		if err := rows.Scan(&endpoint); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}

		endpoints = append(endpoints, endpoint)
	}

	return endpoints, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
