package lake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/poslake-io/poslake/internal/partition"
	"github.com/poslake-io/poslake/internal/schema"
)

// ErrInvalidDateRange indicates a query where the end date precedes the start.
var ErrInvalidDateRange = errors.New("invalid date range")

type (
	// QueryFilter selects records by endpoint, date range, and optionally store.
	QueryFilter struct {
		Endpoint string
		From     time.Time
		To       time.Time

		// StoreID filters to one store; empty means all stores.
		StoreID string
	}

	// Record is one stored file read back, with its payload normalized to the
	// endpoint's current field names.
	Record struct {
		Path     string
		Metadata Metadata

		// Payload is the decoded payload after read-time normalization.
		Payload map[string]any
	}

	// RecordFailure reports one file that could not be returned: corrupt
	// JSON, an integrity mismatch, or an unmappable schema version. Failures
	// never abort the rest of the query.
	RecordFailure struct {
		Path string
		Err  error
	}

	// QueryResult carries the readable records plus the per-file failures.
	QueryResult struct {
		Records  []Record
		Failures []RecordFailure
	}

	// Reader loads records from the partition tree, verifies integrity, and
	// normalizes old-version payloads through the field adapter.
	Reader struct {
		cfg     *Config
		adapter *schema.Adapter
		logger  *slog.Logger
	}
)

// NewReader creates a lake reader.
func NewReader(cfg *Config, registry *schema.Registry, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reader{
		cfg:     cfg,
		adapter: schema.NewAdapter(registry),
		logger:  logger,
	}
}

// Query lists, loads, verifies, and normalizes every record for the filter.
//
// Each file's stored content hash is recomputed on read; a mismatch surfaces
// as a RecordFailure wrapping ErrIntegrityMismatch. One bad file never hides
// the rest of the partition.
func (r *Reader) Query(ctx context.Context, filter QueryFilter) (QueryResult, error) {
	if filter.To.Before(filter.From) {
		return QueryResult{}, fmt.Errorf("%w: %s is after %s",
			ErrInvalidDateRange, filter.From.Format("2006-01-02"), filter.To.Format("2006-01-02"))
	}

	var result QueryResult

	for day := filter.From; !day.After(filter.To); day = day.AddDate(0, 0, 1) {
		storeDirs, err := r.storeDirsFor(filter, day)
		if err != nil {
			return QueryResult{}, err
		}

		for _, dir := range storeDirs {
			files, err := listJSONFiles(dir)
			if err != nil {
				r.logger.Warn("failed to list partition, skipping",
					slog.String("partition", dir),
					slog.String("error", err.Error()))

				continue
			}

			for _, path := range files {
				record, err := r.loadRecord(ctx, path)
				if err != nil {
					result.Failures = append(result.Failures, RecordFailure{Path: path, Err: err})
					r.logger.Warn("failed to load record",
						slog.String("path", path),
						slog.String("error", err.Error()))

					continue
				}

				result.Records = append(result.Records, record)
			}
		}
	}

	return result, nil
}

// storeDirsFor resolves the store directories to scan for one day. Missing
// partitions are normal (no data for that day) and yield nothing.
func (r *Reader) storeDirsFor(filter QueryFilter, day time.Time) ([]string, error) {
	if filter.StoreID != "" {
		key := partition.Key{Endpoint: filter.Endpoint, BusinessDate: day, StoreID: filter.StoreID}

		dir, err := key.Resolve(r.cfg.Root)
		if err != nil {
			return nil, err
		}

		return []string{dir}, nil
	}

	// All stores: scan loja=* under the date partition.
	probe := partition.Key{Endpoint: filter.Endpoint, BusinessDate: day, StoreID: "probe"}

	probeDir, err := probe.Resolve(r.cfg.Root)
	if err != nil {
		return nil, err
	}

	dateDir := filepath.Dir(probeDir)

	entries, err := os.ReadDir(dateDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan partition %s: %w", dateDir, err)
	}

	var dirs []string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, err := partition.ParseStoreSegment(entry.Name()); err != nil {
			continue
		}

		dirs = append(dirs, filepath.Join(dateDir, entry.Name()))
	}

	sort.Strings(dirs)

	return dirs, nil
}

func (r *Reader) loadRecord(ctx context.Context, path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read file: %w", err)
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Record{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	if err := envelope.Validate(); err != nil {
		return Record{}, err
	}

	payload, err := envelope.DecodedPayload()
	if err != nil {
		return Record{}, err
	}

	if err := Verify(payload, envelope.Metadata.ContentHash); err != nil {
		return Record{}, err
	}

	version, err := schema.ParseVersion(envelope.Metadata.SchemaVersion)
	if err != nil {
		return Record{}, err
	}

	normalized, err := r.adapter.Normalize(ctx, envelope.Metadata.Endpoint, payload, version)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Path:     path,
		Metadata: envelope.Metadata,
		Payload:  normalized,
	}, nil
}

func listJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		// Temp files from in-flight writes are never addressable.
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}
