package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Validation errors.
var (
	ErrNoMigrations       = errors.New("no migration files found")
	ErrUnpairedMigration  = errors.New("migration missing its up/down pair")
	ErrSequenceGap        = errors.New("migration sequence has a gap")
	ErrDuplicateSequence  = errors.New("duplicate migration sequence")
	ErrEmptyMigrationFile = errors.New("migration file is empty")
)

// Migration filenames follow 001_migration_name.up.sql /
// 001_migration_name.down.sql. Anything else in the directory is ignored.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// MigrationFile is one parsed migration file.
type MigrationFile struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
	Checksum  string
}

// ValidateMigrations checks the migration directory before anything touches
// the database: every up has a down, sequences start at 1 with no gaps or
// duplicates, and no file is empty. Returns the parsed files sorted by
// filename.
func ValidateMigrations(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []MigrationFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationFilenameRegex.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		sequence, _ := strconv.Atoi(matches[1])

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		if len(data) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyMigrationFile, entry.Name())
		}

		sum := sha256.Sum256(data)

		files = append(files, MigrationFile{
			Sequence:  sequence,
			Name:      matches[2],
			Direction: matches[3],
			Filename:  entry.Name(),
			Checksum:  hex.EncodeToString(sum[:]),
		})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoMigrations, dir)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	if err := validatePairsAndSequence(files); err != nil {
		return nil, err
	}

	return files, nil
}

func validatePairsAndSequence(files []MigrationFile) error {
	type pair struct {
		up, down bool
	}

	pairs := make(map[int]*pair)

	for _, file := range files {
		p, ok := pairs[file.Sequence]
		if !ok {
			p = &pair{}
			pairs[file.Sequence] = p
		}

		switch file.Direction {
		case "up":
			if p.up {
				return fmt.Errorf("%w: %03d", ErrDuplicateSequence, file.Sequence)
			}

			p.up = true
		case "down":
			if p.down {
				return fmt.Errorf("%w: %03d", ErrDuplicateSequence, file.Sequence)
			}

			p.down = true
		}
	}

	for sequence := 1; sequence <= len(pairs); sequence++ {
		p, ok := pairs[sequence]
		if !ok {
			return fmt.Errorf("%w: missing %03d", ErrSequenceGap, sequence)
		}

		if !p.up || !p.down {
			return fmt.Errorf("%w: %03d", ErrUnpairedMigration, sequence)
		}
	}

	return nil
}
