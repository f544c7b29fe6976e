package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/version"
)

// Exit codes of the CLI.
const (
	exitFailure  = 1
	exitMismatch = 2
)

// annotationUsesConfig marks commands whose log settings come from the config file.
const annotationUsesConfig = "uses-config"

var errBadLogLevel = errors.New("unknown log level")

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides log.level from the configuration.
	logLevel string

	// rootCmd represents the base command of the OTA client.
	rootCmd = &cobra.Command{
		Use:   "ota-client",
		Short: "Over-the-air firmware update client",
		Long: "Query the update service for the firmware this device should run, " +
			"download and verify the image and hand it to the installer.",
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
		PersistentPostRun: func(*cobra.Command, []string) {
			logger.Sync()
		},
	}
)

// Execute runs the CLI and exits with a non-zero status on error:
// 2 when a downloaded image failed verification, 1 for any other failure.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	switch {
	case err == nil:
	case errors.Is(err, firmware.ErrIntegrityMismatch):
		os.Exit(exitMismatch)
	default:
		os.Exit(exitFailure)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides log.level")
}

// setupLogging applies the log level and, for commands driven by the
// configuration file, its rotated log file.
func setupLogging(cmd *cobra.Command, _ []string) error {
	level := logger.Level()

	var file logger.FileOptions

	if _, ok := cmd.Annotations[annotationUsesConfig]; ok {
		// Configuration errors are reported by the command itself.
		if cfg, err := config.Load(configPath); err == nil {
			if parsed, valid := logger.ParseLogLevel(cfg.Log.Level); valid && cfg.Log.Level != "" {
				level = parsed
			}

			file = logger.FileOptions{
				Path:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
				Compress:   cfg.Log.Compress,
			}
		}
	}

	if logLevel != "" {
		parsed, valid := logger.ParseLogLevel(logLevel)
		if !valid {
			return fmt.Errorf("%q: %w", logLevel, errBadLogLevel)
		}

		level = parsed
	}

	logger.SetLevel(level)

	if file.Path != "" {
		logger.SetLogger(logger.NewWithFile(logger.AtomicLevel(), file))
	}

	return nil
}
