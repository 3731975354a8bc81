package main

import (
	"github.com/spf13/cobra"

	"github.com/poslake-io/poslake/internal/retention"
)

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup [dest-dir]",
		Short: "Create a full backup of the lake",
		Long: `Copy the entire lake tree into a timestamped backup directory under
dest-dir, along with a metadata document describing the backup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg := loadLakeConfig()

			executor := retention.NewExecutor(cfg, logger)

			report, err := executor.Backup(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := struct {
				Path string `json:"caminho"`
				retention.BackupReport
			}{Path: report.Path, BackupReport: report}

			return printJSON(out)
		},
	}
}
