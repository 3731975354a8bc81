// Package ingest runs batches of payloads through the lake writer with
// bounded retries, rate limiting, and an audit trail.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/poslake-io/poslake/internal/audit"
	"github.com/poslake-io/poslake/internal/lake"
)

// payloadWriter is the slice of lake.Writer the service needs. Narrowed for
// test injection.
type payloadWriter interface {
	Write(ctx context.Context, req lake.WriteRequest) (lake.WrittenFile, error)
}

type (
	// Record is one payload queued for ingestion.
	Record = lake.WriteRequest

	// Failure reports one record that could not be ingested. Failures never
	// abort the rest of the batch.
	Failure struct {
		// Index is the record's position in the submitted batch.
		Index int

		Endpoint string
		StoreID  string
		Err      error
	}

	// BatchResult summarizes one batch run.
	BatchResult struct {
		// RunID identifies this run in logs and audit events.
		RunID string

		Written  []lake.WrittenFile
		Failures []Failure
	}

	// Service ingests batches of records.
	Service struct {
		writer    payloadWriter
		publisher audit.Publisher
		limiter   *rate.Limiter
		logger    *slog.Logger
		cfg       Config

		// sleep is swappable for tests; production uses a context-aware wait.
		sleep func(ctx context.Context, d time.Duration) error
	}
)

// NewService creates a batch ingestion service. A nil publisher disables the
// audit trail.
func NewService(writer *lake.Writer, publisher audit.Publisher, cfg Config, logger *slog.Logger) *Service {
	return newService(writer, publisher, cfg, logger)
}

func newService(writer payloadWriter, publisher audit.Publisher, cfg Config, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	cfg.applyDefaults()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Service{
		writer:    writer,
		publisher: publisher,
		limiter:   limiter,
		logger:    logger,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// IngestBatch writes every record in the batch. I/O failures are retried up
// to the configured attempt count with linear backoff; validation failures
// are not retried. One record's failure never aborts the batch: failures are
// collected and reported in the result.
//
// Context cancellation stops the batch between records; records already
// written stay written.
func (s *Service) IngestBatch(ctx context.Context, records []Record) (BatchResult, error) {
	result := BatchResult{RunID: uuid.NewString()}

	logger := s.logger.With(slog.String("run_id", result.RunID))
	logger.Info("batch started", slog.Int("records", len(records)))

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		written, err := s.writeWithRetry(ctx, record)
		if err != nil {
			result.Failures = append(result.Failures, Failure{
				Index:    i,
				Endpoint: record.Key.Endpoint,
				StoreID:  record.Key.StoreID,
				Err:      err,
			})

			logger.Error("record failed",
				slog.Int("index", i),
				slog.String("partition", record.Key.String()),
				slog.String("error", err.Error()))

			s.publish(ctx, logger, audit.IngestionFailureEvent(
				record.Key.Endpoint, record.Key.StoreID, err.Error(), time.Now().UTC()))

			continue
		}

		result.Written = append(result.Written, written)

		if written.Change != nil {
			s.publish(ctx, logger, audit.SchemaChangeEvent(*written.Change, written.SchemaVersion))
		}
	}

	logger.Info("batch finished",
		slog.Int("written", len(result.Written)),
		slog.Int("failed", len(result.Failures)))

	return result, nil
}

// writeWithRetry retries I/O failures only: a payload that failed validation
// will fail validation again, so it surfaces immediately.
func (s *Service) writeWithRetry(ctx context.Context, record Record) (lake.WrittenFile, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		written, err := s.writer.Write(ctx, record)
		if err == nil {
			return written, nil
		}

		if !errors.Is(err, lake.ErrWriteFailure) {
			return lake.WrittenFile{}, err
		}

		lastErr = err

		if attempt < s.cfg.MaxAttempts {
			s.logger.Warn("write failed, retrying",
				slog.String("partition", record.Key.String()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))

			backoff := time.Duration(attempt) * s.cfg.RetryBackoff
			if err := s.sleep(ctx, backoff); err != nil {
				return lake.WrittenFile{}, err
			}
		}
	}

	return lake.WrittenFile{}, fmt.Errorf("giving up after %d attempts: %w",
		s.cfg.MaxAttempts, lastErr)
}

// publish sends an audit event; failures are logged, never propagated.
func (s *Service) publish(ctx context.Context, logger *slog.Logger, event audit.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("audit publish failed",
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
