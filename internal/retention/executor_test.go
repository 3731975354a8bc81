package retention

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poslake-io/poslake/internal/lake"
	"github.com/poslake-io/poslake/internal/partition"
	"github.com/poslake-io/poslake/internal/schema"
)

func newTestExecutor(t *testing.T) (*Executor, *lake.Writer, *lake.Config) {
	t.Helper()

	cfg := &lake.Config{
		Root:          t.TempDir(),
		SourceSystem:  "sistema_pos",
		OperatorID:    "operador001",
		HashAlgorithm: lake.HashSHA256,
		RetentionDays: 90,
	}

	registry := schema.NewRegistry(schema.NewMemoryStore(), slog.New(slog.DiscardHandler))

	writer, err := lake.NewWriter(cfg, registry, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	return NewExecutor(cfg, slog.New(slog.DiscardHandler)), writer, cfg
}

func writeOn(t *testing.T, writer *lake.Writer, endpoint string, date time.Time, store string) string {
	t.Helper()

	written, err := writer.Write(context.Background(), lake.WriteRequest{
		Key: partition.Key{
			Endpoint:     endpoint,
			BusinessDate: date,
			StoreID:      store,
		},
		Payload: json.RawMessage(`{"id": "X"}`),
	})
	require.NoError(t, err)

	return written.Path
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}

func TestExecutor_ArchivesAgedPartitions(t *testing.T) {
	executor, writer, cfg := newTestExecutor(t)
	ctx := context.Background()

	oldPath := writeOn(t, writer, "getGuestChecks", daysAgo(120), "loja001")
	freshPath := writeOn(t, writer, "getGuestChecks", daysAgo(5), "loja001")

	archived, err := executor.Run(ctx, 90)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	assert.Equal(t, "getGuestChecks", archived[0].Endpoint)
	assert.Equal(t, 1, archived[0].Files)
	assert.Positive(t, archived[0].SizeBytes)

	// The aged file moved; the fresh one stayed put.
	_, err = os.Stat(oldPath)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(freshPath)
	assert.NoError(t, err)

	// Archived copy preserves structure under arquivo/.
	archivePath := filepath.Join(cfg.Root, partition.ArchiveDir, "getGuestChecks",
		partition.DatePath(daysAgo(120)), "loja=loja001", filepath.Base(oldPath))
	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)

	original, err := os.ReadFile(freshPath)
	require.NoError(t, err)
	assert.JSONEq(t, jsonPayloadOf(t, original), jsonPayloadOf(t, data))
}

// jsonPayloadOf pulls the "dados" document out of a stored envelope.
func jsonPayloadOf(t *testing.T, data []byte) string {
	t.Helper()

	var envelope lake.Envelope
	require.NoError(t, json.Unmarshal(data, &envelope))

	return string(envelope.Payload)
}

func TestExecutor_SecondRunReportsNothing(t *testing.T) {
	executor, writer, _ := newTestExecutor(t)
	ctx := context.Background()

	writeOn(t, writer, "getGuestChecks", daysAgo(120), "loja001")

	first, err := executor.Run(ctx, 90)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := executor.Run(ctx, 90)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestExecutor_ResumesInterruptedArchive(t *testing.T) {
	// Simulate a crash between copy and removal: the archive copy exists but
	// the raw partition is still present. The next run skips the identical
	// copy and finishes the removal.
	executor, writer, cfg := newTestExecutor(t)
	ctx := context.Background()

	oldPath := writeOn(t, writer, "getGuestChecks", daysAgo(120), "loja001")

	archiveDir := filepath.Join(cfg.Root, partition.ArchiveDir, "getGuestChecks",
		partition.DatePath(daysAgo(120)), "loja=loja001")
	require.NoError(t, os.MkdirAll(archiveDir, 0o750))

	data, err := os.ReadFile(oldPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(
		filepath.Join(archiveDir, filepath.Base(oldPath)), data, 0o600))

	archived, err := executor.Run(ctx, 90)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	// Nothing newly copied, but the raw partition is gone.
	assert.Zero(t, archived[0].Files)

	_, err = os.Stat(oldPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExecutor_ConflictingArchiveCopyAborts(t *testing.T) {
	executor, writer, cfg := newTestExecutor(t)
	ctx := context.Background()

	oldPath := writeOn(t, writer, "getGuestChecks", daysAgo(120), "loja001")

	archiveDir := filepath.Join(cfg.Root, partition.ArchiveDir, "getGuestChecks",
		partition.DatePath(daysAgo(120)), "loja=loja001")
	require.NoError(t, os.MkdirAll(archiveDir, 0o750))
	require.NoError(t, os.WriteFile(
		filepath.Join(archiveDir, filepath.Base(oldPath)),
		[]byte(`{"unrelated": true}`), 0o600))

	_, err := executor.Run(ctx, 90)
	assert.ErrorIs(t, err, ErrArchiveConflict)

	// The raw partition must survive a refused archive.
	_, err = os.Stat(oldPath)
	assert.NoError(t, err)
}

func TestExecutor_InvalidRetention(t *testing.T) {
	executor, _, _ := newTestExecutor(t)

	_, err := executor.Run(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidRetention)

	_, err = executor.Run(context.Background(), -1)
	assert.ErrorIs(t, err, ErrInvalidRetention)
}

func TestExecutor_EmptyLake(t *testing.T) {
	executor, _, _ := newTestExecutor(t)

	archived, err := executor.Run(context.Background(), 90)
	require.NoError(t, err)
	assert.Empty(t, archived)
}
