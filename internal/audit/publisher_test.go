package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poslake-io/poslake/internal/schema"
)

func TestSchemaChangeEvent(t *testing.T) {
	detectedAt := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)

	event := SchemaChangeEvent(schema.ChangeReport{
		Endpoint:      "getGuestChecks",
		FieldsAdded:   []string{"taxation"},
		FieldsRemoved: []string{"taxes"},
		DetectedAt:    detectedAt,
	}, schema.Version{Major: 1, Minor: 1})

	assert.Equal(t, EventSchemaChange, event.Type)
	assert.Equal(t, "getGuestChecks", event.Endpoint)
	assert.Equal(t, detectedAt, event.OccurredAt)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(event.Detail, &detail))
	assert.Equal(t, "1.1", detail["nova_versao"])
	assert.Equal(t, []any{"taxation"}, detail["campos_adicionados"])
	assert.Equal(t, []any{"taxes"}, detail["campos_removidos"])
}

func TestIngestionFailureEvent(t *testing.T) {
	occurredAt := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)

	event := IngestionFailureEvent("getGuestChecks", "loja001", "disk full", occurredAt)

	assert.Equal(t, EventIngestionFailure, event.Type)
	assert.Equal(t, "getGuestChecks", event.Endpoint)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(event.Detail, &detail))
	assert.Equal(t, "loja001", detail["id_loja"])
	assert.Equal(t, "disk full", detail["motivo"])
}

func TestNewPublisherFromEnv(t *testing.T) {
	t.Run("no brokers means nop", func(t *testing.T) {
		t.Setenv(BrokersEnvVar, "")

		publisher := NewPublisherFromEnv(nil)
		assert.IsType(t, NopPublisher{}, publisher)
	})

	t.Run("brokers configured means kafka", func(t *testing.T) {
		t.Setenv(BrokersEnvVar, "broker1:9092, broker2:9092")
		t.Setenv(TopicEnvVar, "audit.custom")

		publisher := NewPublisherFromEnv(nil)
		kafkaPublisher, ok := publisher.(*KafkaPublisher)
		require.True(t, ok)
		assert.Equal(t, "audit.custom", kafkaPublisher.writer.Topic)

		assert.NoError(t, kafkaPublisher.Close())
	})
}

func TestNopPublisher(t *testing.T) {
	publisher := NopPublisher{}

	assert.NoError(t, publisher.Publish(context.Background(), Event{Type: EventSchemaChange}))
	assert.NoError(t, publisher.Close())
}
