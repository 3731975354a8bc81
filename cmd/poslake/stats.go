package main

import (
	"github.com/spf13/cobra"

	"github.com/poslake-io/poslake/internal/lake"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show lake statistics",
		Long: `Aggregate per-endpoint file counts, sizes, distinct stores, and
available business dates across the raw-data tree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadLakeConfig()

			stats, err := lake.Stats(cmd.Context(), cfg.Root)
			if err != nil {
				return err
			}

			return printJSON(stats)
		},
	}
}
