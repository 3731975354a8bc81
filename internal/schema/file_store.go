package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore persists the schema version history as a single JSON document,
// loaded at startup and rewritten synchronously on every registration.
//
// This is the default backend for the single-operator batch-ingestion model:
// the document lives next to the lake (esquemas/registro.json) and needs no
// external service.
type FileStore struct {
	path  string
	state *MemoryStore
}

type (
	// fileStoreDocument is the on-disk shape of the registry.
	fileStoreDocument struct {
		Endpoints map[string][]fileStoreEntry `json:"endpoints"`
	}

	fileStoreEntry struct {
		Version      string    `json:"versao"`
		Fields       []string  `json:"campos"`
		RegisteredAt time.Time `json:"registrado_em"`
	}
)

// NewFileStore opens (or initializes) a file-backed store at path.
// A missing file is not an error: the registry starts empty and the file is
// created on first registration.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{
		path:  path,
		state: NewMemoryStore(),
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to read registry file %s: %w", s.path, err)
	}

	var doc fileStoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse registry file %s: %w", s.path, err)
	}

	for endpoint, entries := range doc.Endpoints {
		for _, raw := range entries {
			version, err := ParseVersion(raw.Version)
			if err != nil {
				return fmt.Errorf("registry file %s: endpoint %s: %w", s.path, endpoint, err)
			}

			entry := VersionEntry{
				Endpoint:     endpoint,
				Version:      version,
				Fields:       raw.Fields,
				RegisteredAt: raw.RegisteredAt,
			}
			if err := s.state.Append(context.Background(), entry); err != nil {
				return fmt.Errorf("registry file %s: %w", s.path, err)
			}
		}
	}

	return nil
}

// save rewrites the whole document atomically: temp file in the same
// directory, then rename. A crash mid-save never leaves a truncated registry.
func (s *FileStore) save() error {
	doc := fileStoreDocument{Endpoints: make(map[string][]fileStoreEntry)}

	for endpoint, history := range s.state.snapshot() {
		entries := make([]fileStoreEntry, 0, len(history))
		for _, entry := range history {
			entries = append(entries, fileStoreEntry{
				Version:      entry.Version.String(),
				Fields:       entry.Fields,
				RegisteredAt: entry.RegisteredAt,
			})
		}

		doc.Endpoints[endpoint] = entries
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registro-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write registry file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	return nil
}

// Latest returns the most recent entry for endpoint.
func (s *FileStore) Latest(ctx context.Context, endpoint string) (VersionEntry, bool, error) {
	return s.state.Latest(ctx, endpoint)
}

// Get returns the entry for (endpoint, version).
func (s *FileStore) Get(ctx context.Context, endpoint string, version Version) (VersionEntry, bool, error) {
	return s.state.Get(ctx, endpoint, version)
}

// Append adds a new entry and persists the document before returning.
func (s *FileStore) Append(ctx context.Context, entry VersionEntry) error {
	if err := s.state.Append(ctx, entry); err != nil {
		return err
	}

	return s.save()
}

// Versions returns the endpoint's full history in ascending version order.
func (s *FileStore) Versions(ctx context.Context, endpoint string) ([]VersionEntry, error) {
	return s.state.Versions(ctx, endpoint)
}

// Endpoints returns all registered endpoints, sorted.
func (s *FileStore) Endpoints(ctx context.Context) ([]string, error) {
	return s.state.Endpoints(ctx)
}

// Close is a no-op: every Append already persisted synchronously.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
