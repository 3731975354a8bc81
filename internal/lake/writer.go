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
	"time"

	"github.com/google/uuid"

	"github.com/poslake-io/poslake/internal/partition"
	"github.com/poslake-io/poslake/internal/schema"
)

var (
	// ErrWriteFailure wraps I/O errors during file creation. Callers may retry
	// a bounded number of times; validation errors are never wrapped in it.
	ErrWriteFailure = errors.New("write failure")

	// ErrInvalidPayload indicates a payload that is not a JSON object.
	ErrInvalidPayload = errors.New("invalid payload")
)

const (
	dirPerm  = 0o750
	filePerm = 0o600

	// filenameAttempts bounds the unique-name search. With microsecond
	// timestamps plus a random suffix on collision, two attempts is already
	// paranoid.
	filenameAttempts = 5
)

type (
	// WriteRequest carries one payload into the lake.
	WriteRequest struct {
		// Key is the partition the record belongs to.
		Key partition.Key

		// Payload is the raw JSON body as received from the source API.
		Payload json.RawMessage

		// SourceSystem and OperatorID are provenance; empty values fall back
		// to the writer's configuration.
		SourceSystem string
		OperatorID   string
	}

	// WrittenFile describes a successfully written record.
	WrittenFile struct {
		// Path is the absolute location of the stored file.
		Path string

		// FileID is the filename (unique within the partition).
		FileID string

		// SchemaVersion is the version recorded in the envelope. When this
		// write triggered a registration, it is the new version.
		SchemaVersion schema.Version

		// Change is the non-empty change report that triggered a new version,
		// nil when the payload matched the current schema.
		Change *schema.ChangeReport
	}

	// Writer lands payloads in the partition tree with a provenance envelope,
	// running change detection against the schema registry on every write.
	Writer struct {
		cfg      *Config
		registry *schema.Registry
		detector *schema.Detector
		hasher   *Hasher
		logger   *slog.Logger
		now      func() time.Time
	}
)

// NewWriter creates a payload writer.
func NewWriter(cfg *Config, registry *schema.Registry, logger *slog.Logger) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := NewHasher(cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		cfg:      cfg,
		registry: registry,
		detector: schema.NewDetector(registry),
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Write stores one payload under its partition.
//
// Sequence: validate the key and payload, compute the content hash, run
// change detection against the registry (registering the endpoint's initial
// version, or a new version when the field set changed), then write the
// envelope to a temp file and rename it into place. The registry reflects the
// outcome before Write returns, and the envelope's schema version is the
// version current as of this write.
//
// The file is always a new distinct name; existing files are never
// overwritten. On I/O failure no partial file is addressable by any read
// path.
func (w *Writer) Write(ctx context.Context, req WriteRequest) (WrittenFile, error) {
	if err := req.Key.Validate(); err != nil {
		return WrittenFile{}, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(req.Payload, &decoded); err != nil {
		return WrittenFile{}, fmt.Errorf("%w: payload is not a JSON object: %s",
			ErrInvalidPayload, err)
	}

	contentHash, err := w.hasher.Sum(decoded)
	if err != nil {
		return WrittenFile{}, err
	}

	version, change, err := w.reconcileSchema(ctx, req.Key.Endpoint, decoded)
	if err != nil {
		return WrittenFile{}, err
	}

	canonical, err := json.Marshal(decoded)
	if err != nil {
		return WrittenFile{}, fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	ingestedAt := w.now().UTC()
	envelope := Envelope{
		Metadata: Metadata{
			Endpoint:           req.Key.Endpoint,
			BusinessDate:       NewBusinessDate(req.Key.BusinessDate),
			StoreID:            req.Key.StoreID,
			IngestionTimestamp: ingestedAt,
			SchemaVersion:      version.String(),
			ContentHash:        contentHash,
			SizeBytes:          int64(len(canonical)),
			SourceSystem:       valueOr(req.SourceSystem, w.cfg.SourceSystem),
			OperatorID:         valueOr(req.OperatorID, w.cfg.OperatorID),
		},
		Payload: req.Payload,
	}

	if err := envelope.Validate(); err != nil {
		return WrittenFile{}, err
	}

	partitionDir, err := req.Key.Resolve(w.cfg.Root)
	if err != nil {
		return WrittenFile{}, err
	}

	if err := os.MkdirAll(partitionDir, dirPerm); err != nil {
		return WrittenFile{}, fmt.Errorf("%w: failed to create partition %s: %s",
			ErrWriteFailure, partitionDir, err)
	}

	path, err := w.writeEnvelope(partitionDir, req.Key, ingestedAt, &envelope)
	if err != nil {
		return WrittenFile{}, err
	}

	w.logger.Info("payload written",
		slog.String("partition", req.Key.String()),
		slog.String("file", filepath.Base(path)),
		slog.String("schema_version", version.String()),
		slog.Int64("size_bytes", envelope.Metadata.SizeBytes))

	return WrittenFile{
		Path:          path,
		FileID:        filepath.Base(path),
		SchemaVersion: version,
		Change:        change,
	}, nil
}

// reconcileSchema runs change detection and returns the version this write
// lands under. Detection can only add a registry entry, never block the
// write: an unseen endpoint registers its initial version, a changed field
// set registers the next minor version.
func (w *Writer) reconcileSchema(ctx context.Context, endpoint string, payload map[string]any) (schema.Version, *schema.ChangeReport, error) {
	fields := schema.Flatten(payload)

	// An empty payload carries no shape information: store it under the
	// endpoint's current version (the initial sentinel when unseen) and
	// leave the registry untouched.
	if len(fields) == 0 {
		version, err := w.registry.CurrentVersion(ctx, endpoint)
		if err != nil {
			return schema.Version{}, nil, err
		}

		return version, nil, nil
	}

	registered, err := w.registry.Registered(ctx, endpoint)
	if err != nil {
		return schema.Version{}, nil, err
	}

	if !registered {
		version, err := w.registry.RegisterNewVersion(ctx, endpoint, fields)
		if err != nil {
			return schema.Version{}, nil, err
		}

		return version, nil, nil
	}

	report, err := w.detector.Detect(ctx, endpoint, fields)
	if err != nil {
		return schema.Version{}, nil, err
	}

	if report.Empty() {
		version, err := w.registry.CurrentVersion(ctx, endpoint)
		if err != nil {
			return schema.Version{}, nil, err
		}

		return version, nil, nil
	}

	version, err := w.registry.RegisterNewVersion(ctx, endpoint, fields)
	if err != nil {
		return schema.Version{}, nil, err
	}

	w.logger.Info("schema change detected",
		slog.String("endpoint", endpoint),
		slog.String("new_version", version.String()),
		slog.Any("fields_added", report.FieldsAdded),
		slog.Any("fields_removed", report.FieldsRemoved))

	return version, &report, nil
}

// writeEnvelope lands the envelope atomically: temp file in the partition
// directory, then rename onto a name no other file holds.
func (w *Writer) writeEnvelope(dir string, key partition.Key, ingestedAt time.Time, envelope *Envelope) (string, error) {
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ingest-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrWriteFailure, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return "", fmt.Errorf("%w: %s", ErrWriteFailure, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return "", fmt.Errorf("%w: %s", ErrWriteFailure, err)
	}

	name := recordFilename(key, ingestedAt, "")

	for attempt := 0; attempt < filenameAttempts; attempt++ {
		target := filepath.Join(dir, name)

		if _, err := os.Stat(target); err == nil {
			// Same endpoint/store/microsecond: disambiguate and retry.
			name = recordFilename(key, ingestedAt, uuid.NewString()[:8])

			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			_ = os.Remove(tmpName)

			return "", fmt.Errorf("%w: %s", ErrWriteFailure, err)
		}

		if err := os.Rename(tmpName, target); err != nil {
			_ = os.Remove(tmpName)

			return "", fmt.Errorf("%w: %s", ErrWriteFailure, err)
		}

		return target, nil
	}

	_ = os.Remove(tmpName)

	return "", fmt.Errorf("%w: could not find a free filename in %s", ErrWriteFailure, dir)
}

// recordFilename builds {endpoint}_{store}_{YYYYMMDD}_{HHMMSS}_{micros}.json,
// optionally with a disambiguating suffix.
func recordFilename(key partition.Key, ingestedAt time.Time, suffix string) string {
	name := fmt.Sprintf("%s_%s_%s_%06d",
		key.Endpoint,
		key.StoreID,
		ingestedAt.Format("20060102_150405"),
		ingestedAt.Nanosecond()/1000)

	if suffix != "" {
		name += "_" + suffix
	}

	return name + ".json"
}

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}

	return fallback
}
