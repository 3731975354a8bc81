// Package partition provides deterministic partition path resolution for the
// raw-data lake.
//
// Every ingested record lands in a directory derived from its partition key
// (endpoint, business date, store). The mapping is injective: two distinct
// keys never resolve to the same directory, which is what makes the directory
// tree usable as the only index the lake has.
//
// Layout: {root}/dados_brutos/{endpoint}/ano=YYYY/mes=MM/dia=DD/loja={store}
package partition

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RawDataDir is the top-level directory for raw ingested payloads.
const RawDataDir = "dados_brutos"

// ArchiveDir is the top-level directory the retention executor moves aged
// partitions into, preserving the partition structure underneath.
const ArchiveDir = "arquivo"

// Sentinel errors for partition key validation.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidPartitionKey indicates a malformed endpoint, date, or store ID.
	ErrInvalidPartitionKey = errors.New("invalid partition key")

	// ErrNotPartitionPath indicates a directory name that does not follow the
	// ano=/mes=/dia= partition naming convention.
	ErrNotPartitionPath = errors.New("not a partition path")
)

// segmentSafe reports whether s can be used verbatim as a single path segment.
// Rejecting instead of sanitizing is deliberate: silently rewriting a store ID
// could collide two distinct stores into one partition.
func segmentSafe(s string) bool {
	if s == "" {
		return false
	}

	if s == "." || s == ".." {
		return false
	}

	return !strings.ContainsAny(s, "/\\\x00")
}

// Key identifies one partition: a single endpoint/business-date/store
// combination.
type Key struct {
	// Endpoint is the logical name of the source API (e.g., "getGuestChecks").
	Endpoint string

	// BusinessDate is the operational date assigned by the source system,
	// distinct from the ingestion timestamp. Only the calendar date is used.
	BusinessDate time.Time

	// StoreID identifies the store the record belongs to (e.g., "loja001").
	StoreID string
}

// Validate checks that the key maps to a well-formed partition path.
func (k Key) Validate() error {
	if !segmentSafe(k.Endpoint) {
		return fmt.Errorf("%w: endpoint %q is not a valid path segment", ErrInvalidPartitionKey, k.Endpoint)
	}

	if !segmentSafe(k.StoreID) {
		return fmt.Errorf("%w: store ID %q is not a valid path segment", ErrInvalidPartitionKey, k.StoreID)
	}

	if strings.Contains(k.StoreID, "=") {
		return fmt.Errorf("%w: store ID %q must not contain '='", ErrInvalidPartitionKey, k.StoreID)
	}

	if k.BusinessDate.IsZero() {
		return fmt.Errorf("%w: business date is required", ErrInvalidPartitionKey)
	}

	return nil
}

// Segments returns the partition path segments below the raw-data root:
// [endpoint, "ano=YYYY", "mes=MM", "dia=DD", "loja=<store>"].
//
// Deterministic: the same key always yields the same segments.
func (k Key) Segments() ([]string, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}

	year, month, day := k.BusinessDate.Date()

	return []string{
		k.Endpoint,
		fmt.Sprintf("ano=%04d", year),
		fmt.Sprintf("mes=%02d", int(month)),
		fmt.Sprintf("dia=%02d", day),
		"loja=" + k.StoreID,
	}, nil
}

// Resolve returns the absolute partition directory for this key under root.
func (k Key) Resolve(root string) (string, error) {
	segments, err := k.Segments()
	if err != nil {
		return "", err
	}

	parts := append([]string{root, RawDataDir}, segments...)

	return filepath.Join(parts...), nil
}

// DatePath returns the date portion of a partition path below the endpoint
// directory ("ano=YYYY/mes=MM/dia=DD"). Used by the retention executor to
// address whole date-partitions regardless of store.
func DatePath(date time.Time) string {
	year, month, day := date.Date()

	return filepath.Join(
		fmt.Sprintf("ano=%04d", year),
		fmt.Sprintf("mes=%02d", int(month)),
		fmt.Sprintf("dia=%02d", day),
	)
}

// String implements fmt.Stringer for logging.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/loja=%s", k.Endpoint, k.BusinessDate.Format("2006-01-02"), k.StoreID)
}

// ParseDateSegments parses "ano=YYYY", "mes=MM", "dia=DD" directory names back
// into a calendar date. The inverse of Segments for the date portion; the
// retention executor uses it when scanning the partition tree.
func ParseDateSegments(anoDir, mesDir, diaDir string) (time.Time, error) {
	year, err := parseSegment(anoDir, "ano")
	if err != nil {
		return time.Time{}, err
	}

	month, err := parseSegment(mesDir, "mes")
	if err != nil {
		return time.Time{}, err
	}

	day, err := parseSegment(diaDir, "dia")
	if err != nil {
		return time.Time{}, err
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	// time.Date normalizes out-of-range components (mes=13 becomes January).
	// A partition directory holding an impossible date is treated as foreign.
	y, m, d := date.Date()
	if y != year || int(m) != month || d != day {
		return time.Time{}, fmt.Errorf("%w: %s/%s/%s is not a calendar date", ErrNotPartitionPath, anoDir, mesDir, diaDir)
	}

	return date, nil
}

// ParseStoreSegment extracts the store ID from a "loja=<store>" directory name.
func ParseStoreSegment(dir string) (string, error) {
	storeID, ok := strings.CutPrefix(dir, "loja=")
	if !ok || storeID == "" {
		return "", fmt.Errorf("%w: %q is not a store directory", ErrNotPartitionPath, dir)
	}

	return storeID, nil
}

func parseSegment(dir, prefix string) (int, error) {
	value, ok := strings.CutPrefix(dir, prefix+"=")
	if !ok {
		return 0, fmt.Errorf("%w: %q does not start with %q", ErrNotPartitionPath, dir, prefix+"=")
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q has a non-numeric value", ErrNotPartitionPath, dir)
	}

	return n, nil
}
