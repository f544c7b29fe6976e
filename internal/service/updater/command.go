package updater

import (
	"context"
	"fmt"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/service/power"
)

// Options are inputs accepted by the one-shot update entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Endpoint overrides the configured update service URL.
	Endpoint string
	// StagingPath overrides the configured staging path.
	StagingPath string
	// Reboot restarts the device after an installation, using the
	// configured reboot command or the OS default.
	Reboot bool
}

// Run performs a single update attempt and is the public entry point for the CLI.
// A mismatched image is reported as a firmware.ErrIntegrityMismatch error so the
// caller can exit with a distinct status.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "update")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}

	if opts.StagingPath != "" {
		cfg.StagingPath = opts.StagingPath
	}

	if err = config.Validate(cfg); err != nil {
		return err
	}

	var extra []Option
	if opts.Reboot {
		extra = append(extra, WithRebooter(power.NewRebooter(cfg.Installer.RebootCommand)))
	}

	request, err := RequestFromConfig(cfg)
	if err != nil {
		return err
	}

	report, err := FromConfig(cfg, extra...).Run(ctx, request)
	if err != nil {
		return err
	}

	switch report.State {
	case StateUpToDate:
		logger.InfoKV(ctx, "Firmware is up to date", "version", request.CurrentVersion)
	case StateInstalled:
		logger.InfoKV(ctx, "Firmware installed",
			"version", report.Descriptor.Version, "diagnostic", report.Install.Diagnostic)
	case StateMismatched:
		return firmware.NewError(firmware.StageVerify, firmware.KindIntegrityMismatch,
			fmt.Errorf("expected %s, computed %s", report.Descriptor.ContentHash, report.Verification.ComputedHash))
	default:
	}

	return nil
}
