package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/ota-client/internal/service/common"
	"github.com/oshokin/ota-client/internal/service/status"
)

//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var statusOptions status.Options

// statusCmd probes a running daemon.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon's last update run succeeded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		statusOptions.ConfigPath = configPath
		statusOptions.Out = cmd.OutOrStdout()

		return status.Run(cmd.Context(), &statusOptions)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	statusCmd.Flags().StringVar(&statusOptions.Address, "addr", "", "daemon health address (defaults to daemon.health_address)")
	statusCmd.Flags().StringVar(&statusOptions.Service, "service", "", "health service name")
	statusCmd.Flags().BoolVar(&statusOptions.JSON, "json", false, "print the health response as JSON")
	statusCmd.Flags().DurationVar(&statusOptions.Timeout, "timeout", common.DefaultCallTimeout, "health check timeout")

	rootCmd.AddCommand(statusCmd)
}
