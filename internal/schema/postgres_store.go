package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore persists the schema version history in PostgreSQL.
// Table schema lives in migrations/ and is applied with cmd/migrator.
//
// Note: PostgreSQL removes the single-host constraint but not the
// single-writer one. Two processes registering versions for the same endpoint
// can still race between Latest and Append; the unique primary key turns that
// race into an error instead of corruption, but callers are expected to run
// one ingester per endpoint.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL using the given connection string
// and verifies connectivity.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection. Used by integration
// tests that manage the connection lifecycle themselves.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Latest returns the most recent entry for endpoint.
func (s *PostgresStore) Latest(ctx context.Context, endpoint string) (VersionEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT endpoint, version_major, version_minor, fields, registered_at
		FROM schema_versions
		WHERE endpoint = $1
		ORDER BY version_major DESC, version_minor DESC
		LIMIT 1
	`, endpoint)

	return scanEntry(row)
}

// Get returns the entry for (endpoint, version).
func (s *PostgresStore) Get(ctx context.Context, endpoint string, version Version) (VersionEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT endpoint, version_major, version_minor, fields, registered_at
		FROM schema_versions
		WHERE endpoint = $1 AND version_major = $2 AND version_minor = $3
	`, endpoint, version.Major, version.Minor)

	return scanEntry(row)
}

// Append adds a new entry, enforcing the strictly increasing version sequence.
func (s *PostgresStore) Append(ctx context.Context, entry VersionEntry) error {
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
		VALUES ($1, $2, $3, $4, $5)
	`, entry.Endpoint, entry.Version.Major, entry.Version.Minor, fieldsJSON, entry.RegisteredAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	return nil
}

// Versions returns the endpoint's full history in ascending version order.
func (s *PostgresStore) Versions(ctx context.Context, endpoint string) ([]VersionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, version_major, version_minor, fields, registered_at
		FROM schema_versions
		WHERE endpoint = $1
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
func (s *PostgresStore) Endpoints(ctx context.Context) ([]string, error) {
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

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry decodes one schema_versions row. The not-found case is reported
// with the bool, not an error.
func scanEntry(row *sql.Row) (VersionEntry, bool, error) {
	entry, err := scanEntryFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VersionEntry{}, false, nil
		}

		return VersionEntry{}, false, err
	}

	return entry, true, nil
}

func scanEntryFrom(scanner rowScanner) (VersionEntry, error) {
	var (
		entry        VersionEntry
		fieldsJSON   []byte
		registeredAt time.Time
	)

	err := scanner.Scan(
		&entry.Endpoint,
		&entry.Version.Major,
		&entry.Version.Minor,
		&fieldsJSON,
		&registeredAt,
	)
	if err != nil {
		return VersionEntry{}, err
	}

	if err := json.Unmarshal(fieldsJSON, &entry.Fields); err != nil {
		return VersionEntry{}, fmt.Errorf("failed to decode field set for %s %s: %w",
			entry.Endpoint, entry.Version, err)
	}

	entry.RegisteredAt = registeredAt.UTC()

	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]VersionEntry, error) {
	var entries []VersionEntry

	for rows.Next() {
		entry, err := scanEntryFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schema version: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
