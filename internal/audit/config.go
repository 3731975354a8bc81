package audit

import (
	"log/slog"

	"github.com/poslake-io/poslake/internal/config"
)

// Environment variables for the audit publisher.
const (
	BrokersEnvVar = "POSLAKE_KAFKA_BROKERS"
	TopicEnvVar   = "POSLAKE_AUDIT_TOPIC"

	// DefaultTopic is the audit topic when none is configured.
	DefaultTopic = "poslake.auditoria"
)

// NewPublisherFromEnv builds the audit publisher from the environment.
// Without POSLAKE_KAFKA_BROKERS the audit trail is disabled and events are
// discarded.
func NewPublisherFromEnv(logger *slog.Logger) Publisher {
	brokers := config.ParseCommaSeparatedList(config.GetEnvStr(BrokersEnvVar, ""))
	if len(brokers) == 0 {
		return NopPublisher{}
	}

	topic := config.GetEnvStr(TopicEnvVar, DefaultTopic)

	return NewKafkaPublisher(brokers, topic, logger)
}
