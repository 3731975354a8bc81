package retention

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
)

// ErrEmptyBackupDest indicates a missing backup destination directory.
var ErrEmptyBackupDest = errors.New("backup destination cannot be empty")

// backupMetadataFile is the name of the metadata document written alongside
// the copied tree.
const backupMetadataFile = "metadados_backup.json"

// BackupReport describes one completed backup.
type BackupReport struct {
	// Path is the created backup directory.
	Path string `json:"-"`

	CreatedAt  time.Time `json:"timestamp_backup"`
	SourceRoot string    `json:"diretorio_origem"`
	Files      int       `json:"total_arquivos"`
	SizeBytes  int64     `json:"tamanho_total_bytes"`
}

// Backup copies the entire lake tree (raw data, archive, and local registry
// files) into a timestamped directory under destDir and writes a metadata
// document next to the copy.
func (e *Executor) Backup(ctx context.Context, destDir string) (BackupReport, error) {
	if destDir == "" {
		return BackupReport{}, ErrEmptyBackupDest
	}

	startedAt := e.now().UTC()

	backupDir := filepath.Join(destDir,
		"backup_data_lake_"+startedAt.Format("20060102_150405"))

	if err := os.MkdirAll(backupDir, dirPerm); err != nil {
		return BackupReport{}, fmt.Errorf("failed to create backup dir: %w", err)
	}

	report := BackupReport{
		Path:       backupDir,
		CreatedAt:  startedAt,
		SourceRoot: e.cfg.Root,
	}

	err := filepath.WalkDir(e.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == e.cfg.Root {
				// An empty lake still backs up: just the metadata document.
				return nil
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		// Guard against a destination nested inside the lake itself.
		if path == backupDir {
			return fs.SkipDir
		}

		rel, err := filepath.Rel(e.cfg.Root, path)
		if err != nil {
			return err
		}

		target := filepath.Join(backupDir, rel)

		if d.IsDir() {
			return os.MkdirAll(target, dirPerm)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if err := os.WriteFile(target, data, filePerm); err != nil {
			return err
		}

		report.Files++
		report.SizeBytes += int64(len(data))

		return nil
	})
	if err != nil {
		return BackupReport{}, fmt.Errorf("backup failed: %w", err)
	}

	if err := writeBackupMetadata(backupDir, report); err != nil {
		return BackupReport{}, err
	}

	e.logger.Info("backup created",
		slog.String("path", backupDir),
		slog.Int("files", report.Files),
		slog.Int64("size_bytes", report.SizeBytes))

	return report, nil
}

func writeBackupMetadata(backupDir string, report BackupReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup metadata: %w", err)
	}

	path := filepath.Join(backupDir, backupMetadataFile)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}

	return nil
}
