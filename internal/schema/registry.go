package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Registry owns the canonical field-set history per endpoint.
//
// All lookups and registrations go through an injected Store; the registry
// itself holds no ambient state, so two registries over the same store see
// the same history.
type Registry struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates a registry over the given persistence backend.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CurrentVersion returns the most recent registered version for endpoint, or
// InitialVersion as a sentinel if the endpoint has never been registered.
func (r *Registry) CurrentVersion(ctx context.Context, endpoint string) (Version, error) {
	latest, found, err := r.store.Latest(ctx, endpoint)
	if err != nil {
		return Version{}, fmt.Errorf("failed to look up current version for %s: %w", endpoint, err)
	}

	if !found {
		return InitialVersion, nil
	}

	return latest.Version, nil
}

// Registered reports whether endpoint has at least one recorded version.
func (r *Registry) Registered(ctx context.Context, endpoint string) (bool, error) {
	_, found, err := r.store.Latest(ctx, endpoint)
	if err != nil {
		return false, fmt.Errorf("failed to look up endpoint %s: %w", endpoint, err)
	}

	return found, nil
}

// FieldSet returns the recorded field set for (endpoint, version).
// Fails with ErrUnknownSchemaVersion if that pair was never registered.
func (r *Registry) FieldSet(ctx context.Context, endpoint string, version Version) (FieldSet, error) {
	entry, found, err := r.store.Get(ctx, endpoint, version)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s %s: %w", endpoint, version, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownSchemaVersion, endpoint, version)
	}

	return entry.FieldSet(), nil
}

// RegisterNewVersion records fields as the endpoint's next version and
// returns it. The first registration for an endpoint gets InitialVersion;
// subsequent ones get a minor increment.
//
// Idempotent for identical consecutive calls: when fields equals the current
// version's recorded field set, the current version is returned and no new
// entry is created. A detected change therefore produces exactly one version
// even if registration runs twice.
func (r *Registry) RegisterNewVersion(ctx context.Context, endpoint string, fields FieldSet) (Version, error) {
	if len(fields) == 0 {
		return Version{}, fmt.Errorf("%w: endpoint %s", ErrEmptyFieldSet, endpoint)
	}

	latest, found, err := r.store.Latest(ctx, endpoint)
	if err != nil {
		return Version{}, fmt.Errorf("failed to look up current version for %s: %w", endpoint, err)
	}

	version := InitialVersion

	if found {
		if latest.FieldSet().Equal(fields) {
			return latest.Version, nil
		}

		version = latest.Version.NextMinor()
	}

	entry := VersionEntry{
		Endpoint:     endpoint,
		Version:      version,
		Fields:       fields.Sorted(),
		RegisteredAt: r.now().UTC(),
	}

	if err := r.store.Append(ctx, entry); err != nil {
		return Version{}, fmt.Errorf("failed to register %s %s: %w", endpoint, version, err)
	}

	r.logger.Info("registered schema version",
		slog.String("endpoint", endpoint),
		slog.String("version", version.String()),
		slog.Int("fields", len(entry.Fields)))

	return version, nil
}

// Versions returns the endpoint's full history in ascending version order.
func (r *Registry) Versions(ctx context.Context, endpoint string) ([]VersionEntry, error) {
	return r.store.Versions(ctx, endpoint)
}

// Endpoints returns all endpoints with at least one registered version, sorted.
func (r *Registry) Endpoints(ctx context.Context) ([]string, error) {
	return r.store.Endpoints(ctx)
}
