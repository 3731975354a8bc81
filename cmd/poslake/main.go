// Package main provides the poslake command-line tool: batch ingestion,
// querying, retention, backup, and schema inspection for the restaurant POS
// data lake.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/poslake-io/poslake/internal/config"
	"github.com/poslake-io/poslake/internal/lake"
	"github.com/poslake-io/poslake/internal/schema"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "poslake"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     name,
		Short:   "poslake - partitioned data lake for restaurant POS extractions",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default .poslake.yaml, or POSLAKE_CONFIG_PATH)")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(schemaCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger: JSON to stderr so command output on
// stdout stays machine-readable.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))
}

// loadLakeConfig loads the lake configuration from --config or the default
// location.
func loadLakeConfig() *lake.Config {
	path := configPath
	if path == "" {
		path = lake.ConfigPath()
	}

	return lake.LoadConfig(path)
}

// openRegistry opens the configured schema registry store. The caller closes
// the store.
func openRegistry(cfg *lake.Config, logger *slog.Logger) (*schema.Registry, schema.Store, error) {
	storeConfig := schema.LoadStoreConfig()

	store, err := storeConfig.OpenStore(cfg.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open schema registry: %w", err)
	}

	return schema.NewRegistry(store, logger), store, nil
}

// printJSON writes v to stdout as indented JSON, the output format of every
// poslake subcommand.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}
