package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/poslake-io/poslake/internal/lake"
)

func queryCmd() *cobra.Command {
	var (
		endpoint string
		storeID  string
		from     string
		to       string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query stored records with normalized payloads",
		Long: `Query records across a date range. Payloads written under older schema
versions come back with current field names. Examples:

  poslake query --endpoint getGuestChecks --from 2024-01-15 --to 2024-01-15
  poslake query -e getGuestChecks --from 2024-01-01 --to 2024-01-31 --store loja001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := time.ParseInLocation("2006-01-02", from, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid from date %q: %w", from, err)
			}

			toDate, err := time.ParseInLocation("2006-01-02", to, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid to date %q: %w", to, err)
			}

			logger := newLogger()
			cfg := loadLakeConfig()

			registry, store, err := openRegistry(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			reader := lake.NewReader(cfg, registry, logger)

			result, err := reader.Query(cmd.Context(), lake.QueryFilter{
				Endpoint: endpoint,
				From:     fromDate,
				To:       toDate,
				StoreID:  storeID,
			})
			if err != nil {
				return err
			}

			return printJSON(queryOutput(result))
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "source API endpoint (required)")
	cmd.Flags().StringVar(&from, "from", "", "start business date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "end business date YYYY-MM-DD (required)")
	cmd.Flags().StringVarP(&storeID, "store", "s", "", "restrict to one store (default all)")

	_ = cmd.MarkFlagRequired("endpoint")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// queryOutput shapes a query result for stdout.
func queryOutput(result lake.QueryResult) any {
	type record struct {
		Metadata lake.Metadata  `json:"metadados"`
		Payload  map[string]any `json:"dados"`
	}

	type failure struct {
		Path  string `json:"caminho"`
		Error string `json:"erro"`
	}

	out := struct {
		Count    int       `json:"total"`
		Records  []record  `json:"registros"`
		Failures []failure `json:"falhas,omitempty"`
	}{Count: len(result.Records), Records: []record{}}

	for _, r := range result.Records {
		out.Records = append(out.Records, record{Metadata: r.Metadata, Payload: r.Payload})
	}

	for _, f := range result.Failures {
		out.Failures = append(out.Failures, failure{Path: f.Path, Error: f.Err.Error()})
	}

	return out
}
