package main

import (
	"github.com/spf13/cobra"

	"github.com/poslake-io/poslake/internal/retention"
)

func archiveCmd() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move aged partitions into the archive",
		Long: `Archive date-partitions older than the retention window into arquivo/,
preserving the partition structure. Re-running is safe: partitions already
archived are not reported again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg := loadLakeConfig()

			days := retentionDays
			if days == 0 {
				days = cfg.RetentionDays
			}

			executor := retention.NewExecutor(cfg, logger)

			archived, err := executor.Run(cmd.Context(), days)
			if err != nil {
				return err
			}

			out := struct {
				RetentionDays int                           `json:"dias_retencao"`
				Archived      []retention.ArchivedPartition `json:"particoes_arquivadas"`
			}{RetentionDays: days, Archived: archived}

			if out.Archived == nil {
				out.Archived = []retention.ArchivedPartition{}
			}

			return printJSON(out)
		},
	}

	cmd.Flags().IntVarP(&retentionDays, "retention-days", "r", 0,
		"age threshold in days (default from config)")

	return cmd
}
