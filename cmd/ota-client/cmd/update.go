package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/ota-client/internal/service/updater"
)

//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var updateOptions updater.Options

// updateCmd performs one update attempt.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for new firmware once and install it",
	Long: "Query the update service once. When it announces a different version, download the image, " +
		"verify its SHA-256 and run the installer. Exits 2 when the image does not match its digest.",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationUsesConfig: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		updateOptions.ConfigPath = configPath

		return updater.Run(cmd.Context(), &updateOptions)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	updateCmd.Flags().StringVar(&updateOptions.Endpoint, "endpoint", "", "update service URL (overrides endpoint)")
	updateCmd.Flags().StringVar(&updateOptions.StagingPath, "staging-path", "", "where to download the image (overrides staging_path)")
	updateCmd.Flags().BoolVar(&updateOptions.Reboot, "reboot", false, "reboot after a successful install")

	rootCmd.AddCommand(updateCmd)
}
