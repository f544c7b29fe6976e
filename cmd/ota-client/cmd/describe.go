package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/ota-client/internal/service/packager"
)

//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var describeOptions packager.Options

// describeCmd prints the descriptor the update service must serve for an image.
//
//nolint:gochecknoglobals // Cobra commands are package-level by convention.
var describeCmd = &cobra.Command{
	Use:   "describe <image>",
	Short: "Print the firmware descriptor for a release image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		describeOptions.ImagePath = args[0]
		describeOptions.Out = cmd.OutOrStdout()

		return packager.Run(cmd.Context(), &describeOptions)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	describeCmd.Flags().StringVar(&describeOptions.Version, "version", "", "release version string")
	describeCmd.Flags().StringVar(&describeOptions.URL, "url", "", "absolute download URL of the image")
	describeCmd.Flags().StringSliceVar(&describeOptions.DigestCommand, "digest-command", nil,
		"external digest command, e.g. sha256sum (default: in-process SHA-256)")
	describeCmd.Flags().StringVarP(&describeOptions.OutputPath, "output", "o", "", "write the descriptor to a file")

	_ = describeCmd.MarkFlagRequired("version")
	_ = describeCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(describeCmd)
}
