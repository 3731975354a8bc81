package schema

import (
	"context"
	"time"
)

// VersionEntry is one immutable record in an endpoint's schema history.
type VersionEntry struct {
	// Endpoint is the logical source API name.
	Endpoint string

	// Version is this entry's position in the endpoint's version sequence.
	Version Version

	// Fields is the flattened field set recorded for this version, sorted.
	Fields []string

	// RegisteredAt is when the version was registered (UTC).
	RegisteredAt time.Time
}

// FieldSet returns the entry's fields as a FieldSet.
func (e VersionEntry) FieldSet() FieldSet {
	return NewFieldSet(e.Fields...)
}

// Store persists the schema version history.
//
// Implementations: MemoryStore (tests, throwaway runs), FileStore (JSON file,
// the default for single-operator batch ingestion), SQLiteStore (embedded
// database), PostgresStore (shared database, see cmd/migrator).
//
// Single-writer assumption: stores serialize in-process access, but nothing
// coordinates concurrent registration from multiple processes for the same
// endpoint. Multi-process ingestion needs an external lock or a
// single-writer-per-endpoint discipline on top.
type Store interface {
	// Latest returns the most recent entry for endpoint.
	// The bool is false when the endpoint was never registered.
	Latest(ctx context.Context, endpoint string) (VersionEntry, bool, error)

	// Get returns the entry for (endpoint, version).
	// The bool is false when that exact version was never registered.
	Get(ctx context.Context, endpoint string, version Version) (VersionEntry, bool, error)

	// Append adds a new entry. The entry's version must be strictly newer
	// than the endpoint's latest; ErrVersionConflict otherwise. Existing
	// entries are never modified.
	Append(ctx context.Context, entry VersionEntry) error

	// Versions returns the endpoint's full history in ascending version order.
	Versions(ctx context.Context, endpoint string) ([]VersionEntry, error)

	// Endpoints returns all endpoints with at least one registered version, sorted.
	Endpoints(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
