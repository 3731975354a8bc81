package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/poslake-io/poslake/internal/audit"
	"github.com/poslake-io/poslake/internal/ingest"
	"github.com/poslake-io/poslake/internal/lake"
	"github.com/poslake-io/poslake/internal/partition"
)

func ingestCmd() *cobra.Command {
	var (
		endpoint     string
		storeID      string
		businessDate string
	)

	cmd := &cobra.Command{
		Use:   "ingest [payload.json...]",
		Short: "Ingest JSON payload files into the lake",
		Long: `Ingest one or more JSON payload files under a single partition.

Each file holds one payload object as returned by the source API. Examples:

  poslake ingest --endpoint getGuestChecks --store loja001 --date 2024-01-15 checks.json
  poslake ingest -e getFiscalInvoice -s loja002 -d 2024-01-15 inv1.json inv2.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.ParseInLocation("2006-01-02", businessDate, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid business date %q: %w", businessDate, err)
			}

			logger := newLogger()
			cfg := loadLakeConfig()

			registry, store, err := openRegistry(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			writer, err := lake.NewWriter(cfg, registry, logger)
			if err != nil {
				return err
			}

			publisher := audit.NewPublisherFromEnv(logger)
			defer publisher.Close()

			service := ingest.NewService(writer, publisher, ingest.ConfigFromEnv(), logger)

			key := partition.Key{Endpoint: endpoint, BusinessDate: date, StoreID: storeID}

			records := make([]ingest.Record, 0, len(args))

			for _, path := range args {
				payload, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read payload %s: %w", path, err)
				}

				records = append(records, ingest.Record{
					Key:     key,
					Payload: json.RawMessage(payload),
				})
			}

			result, err := service.IngestBatch(cmd.Context(), records)
			if err != nil {
				return err
			}

			if err := printJSON(ingestOutput(result)); err != nil {
				return err
			}

			if len(result.Failures) > 0 {
				return fmt.Errorf("%d of %d records failed", len(result.Failures), len(records))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "source API endpoint (required)")
	cmd.Flags().StringVarP(&storeID, "store", "s", "", "store ID (required)")
	cmd.Flags().StringVarP(&businessDate, "date", "d", "", "business date YYYY-MM-DD (required)")

	_ = cmd.MarkFlagRequired("endpoint")
	_ = cmd.MarkFlagRequired("store")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

// ingestOutput shapes a batch result for stdout.
func ingestOutput(result ingest.BatchResult) any {
	type failure struct {
		Index    int    `json:"indice"`
		Endpoint string `json:"endpoint"`
		StoreID  string `json:"id_loja"`
		Error    string `json:"erro"`
	}

	type writtenFile struct {
		Path          string `json:"caminho"`
		SchemaVersion string `json:"versao_esquema"`
	}

	out := struct {
		RunID    string        `json:"id_execucao"`
		Written  []writtenFile `json:"arquivos_gravados"`
		Failures []failure     `json:"falhas,omitempty"`
	}{RunID: result.RunID, Written: []writtenFile{}}

	for _, w := range result.Written {
		out.Written = append(out.Written, writtenFile{
			Path:          w.Path,
			SchemaVersion: w.SchemaVersion.String(),
		})
	}

	for _, f := range result.Failures {
		out.Failures = append(out.Failures, failure{
			Index:    f.Index,
			Endpoint: f.Endpoint,
			StoreID:  f.StoreID,
			Error:    f.Err.Error(),
		})
	}

	return out
}
