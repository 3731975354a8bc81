package main

import (
	"github.com/spf13/cobra"

	"github.com/poslake-io/poslake/internal/schema"
)

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [endpoint]",
		Short: "List known endpoints or one endpoint's version history",
		Long: `Without arguments, list every endpoint in the schema registry with its
current version. With an endpoint, print the full version history including
each version's field set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg := loadLakeConfig()

			registry, store, err := openRegistry(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()

			if len(args) == 1 {
				history, err := registry.Versions(ctx, args[0])
				if err != nil {
					return err
				}

				return printJSON(historyOutput(args[0], history))
			}

			endpoints, err := registry.Endpoints(ctx)
			if err != nil {
				return err
			}

			type endpointVersion struct {
				Endpoint string `json:"endpoint"`
				Version  string `json:"versao_atual"`
			}

			out := make([]endpointVersion, 0, len(endpoints))

			for _, endpoint := range endpoints {
				current, err := registry.CurrentVersion(ctx, endpoint)
				if err != nil {
					return err
				}

				out = append(out, endpointVersion{Endpoint: endpoint, Version: current.String()})
			}

			return printJSON(out)
		},
	}
}

// historyOutput shapes one endpoint's version history for stdout.
func historyOutput(endpoint string, history []schema.VersionEntry) any {
	type version struct {
		Version      string   `json:"versao"`
		Fields       []string `json:"campos"`
		RegisteredAt string   `json:"registrado_em"`
	}

	out := struct {
		Endpoint string    `json:"endpoint"`
		Versions []version `json:"versoes"`
	}{Endpoint: endpoint, Versions: []version{}}

	for _, entry := range history {
		out.Versions = append(out.Versions, version{
			Version:      entry.Version.String(),
			Fields:       entry.Fields,
			RegisteredAt: entry.RegisteredAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	return out
}
