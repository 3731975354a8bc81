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

func testConfig(t *testing.T) *Config {
	t.Helper()

	return &Config{
		Root:          t.TempDir(),
		SourceSystem:  "sistema_pos",
		OperatorID:    "operador001",
		HashAlgorithm: HashSHA256,
		RetentionDays: 90,
	}
}

func newTestWriter(t *testing.T, cfg *Config) (*Writer, *schema.Registry) {
	t.Helper()

	registry := schema.NewRegistry(schema.NewMemoryStore(), slog.New(slog.DiscardHandler))

	writer, err := NewWriter(cfg, registry, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	return writer, registry
}

func guestCheckKey() partition.Key {
	return partition.Key{
		Endpoint:     "getGuestChecks",
		BusinessDate: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		StoreID:      "loja001",
	}
}

func TestWriter_FirstWriteRegistersInitialVersion(t *testing.T) {
	cfg := testConfig(t)
	writer, registry := newTestWriter(t, cfg)
	ctx := context.Background()

	written, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "X", "taxes": [{"taxNum": 1}]}`),
	})

	require.NoError(t, err)
	assert.Equal(t, schema.InitialVersion, written.SchemaVersion)
	assert.Nil(t, written.Change)

	current, err := registry.CurrentVersion(ctx, "getGuestChecks")
	require.NoError(t, err)
	assert.Equal(t, schema.InitialVersion, current)

	// File landed under the resolved partition.
	partitionDir, err := guestCheckKey().Resolve(cfg.Root)
	require.NoError(t, err)
	assert.Equal(t, partitionDir, filepath.Dir(written.Path))
	assert.True(t, strings.HasPrefix(written.FileID, "getGuestChecks_loja001_"))
	assert.True(t, strings.HasSuffix(written.FileID, ".json"))
}

func TestWriter_EnvelopeContents(t *testing.T) {
	cfg := testConfig(t)
	writer, _ := newTestWriter(t, cfg)

	payload := json.RawMessage(`{"guestCheckId": "X", "chkTtl": 50.05}`)

	written, err := writer.Write(context.Background(), WriteRequest{
		Key:     guestCheckKey(),
		Payload: payload,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(written.Path)
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(data, &envelope))

	assert.Equal(t, "getGuestChecks", envelope.Metadata.Endpoint)
	assert.Equal(t, "loja001", envelope.Metadata.StoreID)
	assert.Equal(t, "2024-01-15", envelope.Metadata.BusinessDate.Format("2006-01-02"))
	assert.Equal(t, "1.0", envelope.Metadata.SchemaVersion)
	assert.Equal(t, "sistema_pos", envelope.Metadata.SourceSystem)
	assert.Equal(t, "operador001", envelope.Metadata.OperatorID)
	assert.NotZero(t, envelope.Metadata.SizeBytes)
	assert.False(t, envelope.Metadata.IngestionTimestamp.IsZero())
	assert.JSONEq(t, string(payload), string(envelope.Payload))

	decoded, err := envelope.DecodedPayload()
	require.NoError(t, err)
	assert.NoError(t, Verify(decoded, envelope.Metadata.ContentHash))
}

func TestWriter_SchemaChangeRegistersNewVersion(t *testing.T) {
	// Scenario: endpoint at 1.0 with {guestCheckId, taxes}; a payload arrives
	// with taxes renamed to taxation. Expect version 1.1 and the envelope
	// written under it.
	cfg := testConfig(t)
	writer, registry := newTestWriter(t, cfg)
	ctx := context.Background()

	_, err := registry.RegisterNewVersion(ctx, "getGuestChecks",
		schema.NewFieldSet("guestCheckId", "taxes"))
	require.NoError(t, err)

	written, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "X", "taxation": "BR"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "1.1", written.SchemaVersion.String())
	require.NotNil(t, written.Change)
	assert.Equal(t, []string{"taxation"}, written.Change.FieldsAdded)
	assert.Equal(t, []string{"taxes"}, written.Change.FieldsRemoved)

	data, err := os.ReadFile(written.Path)
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "1.1", envelope.Metadata.SchemaVersion)

	current, err := registry.CurrentVersion(ctx, "getGuestChecks")
	require.NoError(t, err)
	assert.Equal(t, "1.1", current.String())
}

func TestWriter_EmptyPayloadNeverBlocksWrite(t *testing.T) {
	// An empty object has no fields to compare; it stores under the current
	// version without touching the registry.
	cfg := testConfig(t)
	writer, registry := newTestWriter(t, cfg)
	ctx := context.Background()

	first, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "X", "taxes": "10.5"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0", first.SchemaVersion.String())

	empty, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0", empty.SchemaVersion.String())
	assert.Nil(t, empty.Change)

	history, err := registry.Versions(ctx, "getGuestChecks")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// A later payload with the recorded shape still writes under 1.0.
	again, err := writer.Write(ctx, WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "Y", "taxes": "11.0"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0", again.SchemaVersion.String())
}

func TestWriter_EmptyPayloadOnUnseenEndpoint(t *testing.T) {
	cfg := testConfig(t)
	writer, registry := newTestWriter(t, cfg)
	ctx := context.Background()

	written, err := writer.Write(ctx, WriteRequest{
		Key: partition.Key{
			Endpoint:     "getOrders",
			BusinessDate: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
			StoreID:      "loja001",
		},
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.InitialVersion, written.SchemaVersion)

	// No shape was recorded: the endpoint registers on its first payload
	// with actual fields.
	registered, err := registry.Registered(ctx, "getOrders")
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestWriter_NoChangeKeepsVersion(t *testing.T) {
	cfg := testConfig(t)
	writer, registry := newTestWriter(t, cfg)
	ctx := context.Background()

	payload := json.RawMessage(`{"guestCheckId": "X", "taxes": "BR"}`)

	first, err := writer.Write(ctx, WriteRequest{Key: guestCheckKey(), Payload: payload})
	require.NoError(t, err)

	second, err := writer.Write(ctx, WriteRequest{Key: guestCheckKey(), Payload: payload})
	require.NoError(t, err)

	assert.Equal(t, first.SchemaVersion, second.SchemaVersion)
	assert.Nil(t, second.Change)

	history, err := registry.Versions(ctx, "getGuestChecks")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestWriter_SameSecondWritesDistinctFiles(t *testing.T) {
	cfg := testConfig(t)
	writer, _ := newTestWriter(t, cfg)
	ctx := context.Background()

	// Freeze the clock so both writes share the same timestamp entirely.
	frozen := time.Date(2024, time.January, 15, 10, 30, 0, 123456000, time.UTC)
	writer.now = func() time.Time { return frozen }

	payload := json.RawMessage(`{"guestCheckId": "X"}`)

	first, err := writer.Write(ctx, WriteRequest{Key: guestCheckKey(), Payload: payload})
	require.NoError(t, err)

	second, err := writer.Write(ctx, WriteRequest{Key: guestCheckKey(), Payload: payload})
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)

	for _, path := range []string{first.Path, second.Path} {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestWriter_InvalidKeyRejected(t *testing.T) {
	cfg := testConfig(t)
	writer, _ := newTestWriter(t, cfg)

	_, err := writer.Write(context.Background(), WriteRequest{
		Key: partition.Key{
			Endpoint:     "getGuestChecks",
			BusinessDate: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
			StoreID:      "loja/001",
		},
		Payload: json.RawMessage(`{"a": 1}`),
	})

	assert.ErrorIs(t, err, partition.ErrInvalidPartitionKey)
}

func TestWriter_NonObjectPayloadRejected(t *testing.T) {
	cfg := testConfig(t)
	writer, _ := newTestWriter(t, cfg)

	_, err := writer.Write(context.Background(), WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`[1, 2, 3]`),
	})

	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestWriter_NoTempFilesLeftBehind(t *testing.T) {
	cfg := testConfig(t)
	writer, _ := newTestWriter(t, cfg)

	written, err := writer.Write(context.Background(), WriteRequest{
		Key:     guestCheckKey(),
		Payload: json.RawMessage(`{"guestCheckId": "X"}`),
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(written.Path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, written.FileID, entries[0].Name())
}

func TestWriter_ProvenanceOverrides(t *testing.T) {
	cfg := testConfig(t)
	writer, _ := newTestWriter(t, cfg)

	written, err := writer.Write(context.Background(), WriteRequest{
		Key:          guestCheckKey(),
		Payload:      json.RawMessage(`{"guestCheckId": "X"}`),
		SourceSystem: "pos_terminal_1",
		OperatorID:   "operador042",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(written.Path)
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "pos_terminal_1", envelope.Metadata.SourceSystem)
	assert.Equal(t, "operador042", envelope.Metadata.OperatorID)
}
