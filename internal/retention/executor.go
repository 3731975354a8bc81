// Package retention ages raw-data partitions out of the active tree and into
// the archive, and produces full lake backups.
package retention

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/poslake-io/poslake/internal/lake"
	"github.com/poslake-io/poslake/internal/partition"
)

var (
	// ErrInvalidRetention indicates a non-positive retention window.
	ErrInvalidRetention = errors.New("retention days must be positive")

	// ErrArchiveConflict indicates an archived file already exists with
	// different content than the one being aged out. This never happens under
	// normal operation; it means someone wrote into arquivo/ by hand.
	ErrArchiveConflict = errors.New("archive conflict")
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

type (
	// ArchivedPartition describes one date-partition moved to the archive.
	ArchivedPartition struct {
		Endpoint     string    `json:"endpoint"`
		BusinessDate time.Time `json:"data_negocio"`
		Files        int       `json:"arquivos"`
		SizeBytes    int64     `json:"tamanho_bytes"`
	}

	// Executor applies the retention policy to the lake.
	Executor struct {
		cfg    *lake.Config
		logger *slog.Logger
		now    func() time.Time
	}
)

// NewExecutor creates a retention executor for the configured lake.
func NewExecutor(cfg *lake.Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{cfg: cfg, logger: logger, now: time.Now}
}

// Run archives every date-partition whose business date is older than
// retentionDays. Partitions are copied into arquivo/ preserving the
// endpoint/ano=/mes=/dia= structure, then removed from dados_brutos/.
//
// Run is idempotent: files already present in the archive with identical
// content are skipped, and a second run over an already-archived lake reports
// no newly archived partitions. A copy interrupted between copy and removal
// is completed by the next run.
func (e *Executor) Run(ctx context.Context, retentionDays int) ([]ArchivedPartition, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRetention, retentionDays)
	}

	cutoff := e.now().UTC().AddDate(0, 0, -retentionDays)

	rawDir := filepath.Join(e.cfg.Root, partition.RawDataDir)

	endpoints, err := os.ReadDir(rawDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan raw data dir: %w", err)
	}

	var archived []ArchivedPartition

	for _, endpointEntry := range endpoints {
		if err := ctx.Err(); err != nil {
			return archived, err
		}

		if !endpointEntry.IsDir() {
			continue
		}

		endpointArchived, err := e.archiveEndpoint(ctx, endpointEntry.Name(), cutoff)
		if err != nil {
			return archived, err
		}

		archived = append(archived, endpointArchived...)
	}

	e.logger.Info("retention run complete",
		slog.Int("retention_days", retentionDays),
		slog.String("cutoff", cutoff.Format("2006-01-02")),
		slog.Int("partitions_archived", len(archived)))

	return archived, nil
}

// archiveEndpoint walks one endpoint's ano=/mes=/dia= tree and archives every
// day partition older than the cutoff.
func (e *Executor) archiveEndpoint(ctx context.Context, endpoint string, cutoff time.Time) ([]ArchivedPartition, error) {
	endpointDir := filepath.Join(e.cfg.Root, partition.RawDataDir, endpoint)

	var archived []ArchivedPartition

	err := eachDayPartition(endpointDir, func(date time.Time, dayDir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !date.Before(cutoff) {
			return nil
		}

		stats, err := e.archiveDay(endpoint, date, dayDir)
		if err != nil {
			return err
		}

		archived = append(archived, ArchivedPartition{
			Endpoint:     endpoint,
			BusinessDate: date,
			Files:        stats.files,
			SizeBytes:    stats.sizeBytes,
		})

		e.logger.Info("partition archived",
			slog.String("endpoint", endpoint),
			slog.String("business_date", date.Format("2006-01-02")),
			slog.Int("files", stats.files))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return archived, nil
}

type copyStats struct {
	files     int
	sizeBytes int64
}

// archiveDay copies one day directory into arquivo/ and removes the original.
func (e *Executor) archiveDay(endpoint string, date time.Time, dayDir string) (copyStats, error) {
	destDir := filepath.Join(e.cfg.Root, partition.ArchiveDir, endpoint, partition.DatePath(date))

	stats, err := copyTree(dayDir, destDir)
	if err != nil {
		return copyStats{}, fmt.Errorf("failed to archive %s %s: %w",
			endpoint, date.Format("2006-01-02"), err)
	}

	if err := os.RemoveAll(dayDir); err != nil {
		return copyStats{}, fmt.Errorf("failed to remove archived partition %s: %w", dayDir, err)
	}

	pruneEmptyParents(dayDir, filepath.Join(e.cfg.Root, partition.RawDataDir))

	return stats, nil
}

// eachDayPartition calls fn for every ano=/mes=/dia= directory under
// endpointDir. Directories that don't follow the naming convention are
// skipped.
func eachDayPartition(endpointDir string, fn func(date time.Time, dayDir string) error) error {
	years, err := os.ReadDir(endpointDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return err
	}

	for _, year := range years {
		if !year.IsDir() {
			continue
		}

		months, err := os.ReadDir(filepath.Join(endpointDir, year.Name()))
		if err != nil {
			return err
		}

		for _, month := range months {
			if !month.IsDir() {
				continue
			}

			days, err := os.ReadDir(filepath.Join(endpointDir, year.Name(), month.Name()))
			if err != nil {
				return err
			}

			for _, day := range days {
				if !day.IsDir() {
					continue
				}

				date, err := partition.ParseDateSegments(year.Name(), month.Name(), day.Name())
				if err != nil {
					continue
				}

				dayDir := filepath.Join(endpointDir, year.Name(), month.Name(), day.Name())
				if err := fn(date, dayDir); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// copyTree copies src into dest recursively. Existing destination files with
// identical content are skipped; differing content is an ErrArchiveConflict.
func copyTree(src, dest string) (copyStats, error) {
	var stats copyStats

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, dirPerm)
		}

		copied, size, err := copyFile(path, target)
		if err != nil {
			return err
		}

		if copied {
			stats.files++
			stats.sizeBytes += size
		}

		return nil
	})

	return stats, err
}

// copyFile copies src to dest unless dest already holds identical content.
// Returns whether a copy happened and the file size.
func copyFile(src, dest string) (bool, int64, error) {
	srcSum, size, err := fileDigest(src)
	if err != nil {
		return false, 0, err
	}

	destSum, _, err := fileDigest(dest)

	switch {
	case err == nil && destSum == srcSum:
		return false, 0, nil
	case err == nil:
		return false, 0, fmt.Errorf("%w: %s differs from source", ErrArchiveConflict, dest)
	case !errors.Is(err, fs.ErrNotExist):
		return false, 0, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return false, 0, err
	}

	if err := os.WriteFile(dest, data, filePerm); err != nil {
		return false, 0, err
	}

	return true, size, nil
}

// fileDigest returns the hex SHA-256 of the file's bytes and its size.
func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()

	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// pruneEmptyParents removes now-empty ano=/mes= directories up to (not
// including) stop. Removal failures are ignored: a non-empty directory is the
// expected stop condition.
func pruneEmptyParents(dir, stop string) {
	for parent := filepath.Dir(dir); parent != stop && len(parent) > len(stop); parent = filepath.Dir(parent) {
		if err := os.Remove(parent); err != nil {
			return
		}
	}
}
