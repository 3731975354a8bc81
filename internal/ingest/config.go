package ingest

import (
	"time"

	"github.com/poslake-io/poslake/internal/config"
)

// Defaults for the batch ingestion service.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Config tunes batch ingestion.
type Config struct {
	// MaxAttempts is how many times an I/O-failed write is tried in total.
	MaxAttempts int

	// RetryBackoff is the base wait between attempts; attempt n waits
	// n * RetryBackoff.
	RetryBackoff time.Duration

	// RateLimit caps writes per second across the batch. Zero means
	// unlimited.
	RateLimit float64
}

// ConfigFromEnv reads ingestion tuning from the environment.
func ConfigFromEnv() Config {
	return Config{
		MaxAttempts:  config.GetEnvInt("POSLAKE_INGEST_MAX_ATTEMPTS", DefaultMaxAttempts),
		RetryBackoff: config.GetEnvDuration("POSLAKE_INGEST_RETRY_BACKOFF", DefaultRetryBackoff),
		RateLimit:    float64(config.GetEnvInt("POSLAKE_INGEST_RATE_LIMIT", 0)),
	}
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
}
