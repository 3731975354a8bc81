package lake

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poslake-io/poslake/internal/partition"
	"github.com/poslake-io/poslake/internal/schema"
)

func newTestLake(t *testing.T) (*Writer, *Reader, *schema.Registry, *Config) {
	t.Helper()

	cfg := testConfig(t)
	registry := schema.NewRegistry(schema.NewMemoryStore(), slog.New(slog.DiscardHandler))

	writer, err := NewWriter(cfg, registry, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	reader := NewReader(cfg, registry, slog.New(slog.DiscardHandler))

	return writer, reader, registry, cfg
}

func TestReader_RoundTrip(t *testing.T) {
	writer, reader, _, _ := newTestLake(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"guestCheckId": "GC-1", "chkTtl": 50.05}`)

	written, err := writer.Write(ctx, WriteRequest{Key: guestCheckKey(), Payload: payload})
	require.NoError(t, err)

	day := guestCheckKey().BusinessDate
	result, err := reader.Query(ctx, QueryFilter{
		Endpoint: "getGuestChecks",
		From:     day,
		To:       day,
		StoreID:  "loja001",
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Empty(t, result.Failures)

	record := result.Records[0]
	assert.Equal(t, written.Path, record.Path)
	assert.Equal(t, "GC-1", record.Payload["guestCheckId"])
	assert.Equal(t, 50.05, record.Payload["chkTtl"])
	assert.Equal(t, "1.0", record.Metadata.SchemaVersion)
}

func TestReader_NormalizesRenamedField(t *testing.T) {
	// A file written under 1.0 with "taxes" reads back with "taxation" after
	// the rename registers version 1.1.
	writer, reader, _, _ := newTestLake(t)
	ctx := context.Background()

	oldFile, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "GC-1", "taxes": "10.5"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0", oldFile.SchemaVersion.String())

	newFile, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "GC-2", "taxation": "11.0"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1.1", newFile.SchemaVersion.String())

	day := guestCheckKey().BusinessDate
	result, err := reader.Query(ctx, QueryFilter{
		Endpoint: "getGuestChecks",
		From:     day,
		To:       day,
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Empty(t, result.Failures)

	for _, record := range result.Records {
		assert.Contains(t, record.Payload, "taxation",
			"record %s should use the current field name", record.Path)
		assert.NotContains(t, record.Payload, "taxes")
	}

	// The stored file keeps its original shape: normalization is read-time.
	data, err := os.ReadFile(oldFile.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"taxes"`)
}

func TestReader_TamperedFileReportedAsFailure(t *testing.T) {
	writer, reader, _, _ := newTestLake(t)
	ctx := context.Background()

	written, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "GC-1", "chkTtl": 50.05}`),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(written.Path)
	require.NoError(t, err)

	tampered := strings.Replace(string(data), "50.05", "999.99", 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(written.Path, []byte(tampered), 0o600))

	day := guestCheckKey().BusinessDate
	result, err := reader.Query(ctx, QueryFilter{
		Endpoint: "getGuestChecks",
		From:     day,
		To:       day,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, written.Path, result.Failures[0].Path)
	assert.ErrorIs(t, result.Failures[0].Err, ErrIntegrityMismatch)
}

func TestReader_CorruptFileDoesNotAbortQuery(t *testing.T) {
	writer, reader, _, _ := newTestLake(t)
	ctx := context.Background()

	written, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "GC-1"}`),
	})
	require.NoError(t, err)

	dir, err := guestCheckKey().Resolve(writer.cfg.Root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "getGuestChecks_loja001_20240115_095959_999999.json"),
		[]byte("{not json"), 0o600))

	day := guestCheckKey().BusinessDate
	result, err := reader.Query(ctx, QueryFilter{
		Endpoint: "getGuestChecks",
		From:     day,
		To:       day,
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, written.Path, result.Records[0].Path)
	assert.Len(t, result.Failures, 1)
}

func TestReader_AllStoresAndDateRange(t *testing.T) {
	writer, reader, _, _ := newTestLake(t)
	ctx := context.Background()

	days := []time.Time{
		time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC),
	}

	for _, day := range days {
		for _, store := range []string{"loja001", "loja002"} {
			_, err := writer.Write(ctx, WriteRequest{
				Key: partition.Key{
					Endpoint:     "getGuestChecks",
					BusinessDate: day,
					StoreID:      store,
				},
				Payload: json.RawMessage(`{"guestCheckId": "GC-1"}`),
			})
			require.NoError(t, err)
		}
	}

	// First two days, all stores.
	result, err := reader.Query(ctx, QueryFilter{
		Endpoint: "getGuestChecks",
		From:     days[0],
		To:       days[1],
	})
	require.NoError(t, err)
	assert.Len(t, result.Records, 4)

	// One store only.
	result, err = reader.Query(ctx, QueryFilter{
		Endpoint: "getGuestChecks",
		From:     days[0],
		To:       days[2],
		StoreID:  "loja002",
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 3)

	for _, record := range result.Records {
		assert.Equal(t, "loja002", record.Metadata.StoreID)
	}
}

func TestReader_InvalidDateRange(t *testing.T) {
	_, reader, _, _ := newTestLake(t)

	_, err := reader.Query(context.Background(), QueryFilter{
		Endpoint: "getGuestChecks",
		From:     time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestReader_EmptyLake(t *testing.T) {
	_, reader, _, _ := newTestLake(t)

	day := guestCheckKey().BusinessDate
	result, err := reader.Query(context.Background(), QueryFilter{
		Endpoint: "getOrders",
		From:     day,
		To:       day,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Empty(t, result.Failures)
}
