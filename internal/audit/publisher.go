// Package audit publishes lake audit events (schema changes, failed
// ingestions) to a Kafka topic. The audit trail is advisory: the stored
// envelopes and the schema registry remain the source of truth, so publish
// failures are logged and never fail the operation that produced the event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/poslake-io/poslake/internal/schema"
)

// Event types carried on the audit topic.
const (
	EventSchemaChange     = "mudanca_esquema"
	EventIngestionFailure = "falha_ingestao"
)

type (
	// Event is one audit record. Detail holds the type-specific document.
	Event struct {
		Type       string          `json:"tipo"`
		OccurredAt time.Time       `json:"timestamp"`
		Endpoint   string          `json:"endpoint"`
		Detail     json.RawMessage `json:"detalhe,omitempty"`
	}

	// Publisher emits audit events.
	Publisher interface {
		Publish(ctx context.Context, event Event) error
		Close() error
	}
)

// SchemaChangeEvent builds the audit event for a newly registered schema
// version.
func SchemaChangeEvent(report schema.ChangeReport, newVersion schema.Version) Event {
	detail, _ := json.Marshal(struct {
		NewVersion    string   `json:"nova_versao"`
		FieldsAdded   []string `json:"campos_adicionados"`
		FieldsRemoved []string `json:"campos_removidos"`
	}{
		NewVersion:    newVersion.String(),
		FieldsAdded:   report.FieldsAdded,
		FieldsRemoved: report.FieldsRemoved,
	})

	return Event{
		Type:       EventSchemaChange,
		OccurredAt: report.DetectedAt,
		Endpoint:   report.Endpoint,
		Detail:     detail,
	}
}

// IngestionFailureEvent builds the audit event for a record that could not be
// written after retries.
func IngestionFailureEvent(endpoint, storeID, reason string, occurredAt time.Time) Event {
	detail, _ := json.Marshal(struct {
		StoreID string `json:"id_loja"`
		Reason  string `json:"motivo"`
	}{
		StoreID: storeID,
		Reason:  reason,
	})

	return Event{
		Type:       EventIngestionFailure,
		OccurredAt: occurredAt,
		Endpoint:   endpoint,
		Detail:     detail,
	}
}

// KafkaPublisher writes audit events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher against the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// Publish sends one event, keyed by endpoint so an endpoint's audit history
// stays ordered within a partition. Errors are returned for the caller to
// log; they must not propagate into the ingestion path.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Endpoint),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
