package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pezzottify/catalog-engine/internal/app"
)

//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the download queue processor, ingestion pipeline, watchdog, and scheduler.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return app.Serve(cmd.Context(), appConfig)
	},
}

//nolint:gochecknoinits // Cobra requires the init function to register subcommands.
func init() {
	rootCmd.AddCommand(serveCmd)
}
