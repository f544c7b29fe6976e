package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/ota-client/internal/service/daemon"
)

//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var daemonOptions daemon.Options

// daemonCmd checks for updates periodically.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Check for new firmware periodically",
	Long: "Run update checks after daemon.initial_delay and then every daemon.interval with jitter. " +
		"SIGUSR1 or an MQTT firmware-pull message triggers an immediate check.",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationUsesConfig: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		daemonOptions.ConfigPath = configPath

		return daemon.Run(cmd.Context(), &daemonOptions)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	daemonCmd.Flags().BoolVar(&daemonOptions.SkipInitialDelay, "now", false, "run the first check immediately")

	rootCmd.AddCommand(daemonCmd)
}
