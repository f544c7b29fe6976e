package packager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/integrity"
	"github.com/oshokin/ota-client/internal/logger"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ImagePath is the release image to describe.
	ImagePath string
	// Version is the version string devices will compare against.
	Version string
	// URL is where devices will download the image from.
	URL string
	// DigestCommand overrides in-process hashing, mirroring digest.command on devices.
	DigestCommand []string
	// OutputPath receives the descriptor; empty writes to Out.
	OutputPath string
	// Out receives the descriptor when OutputPath is empty; defaults to stdout.
	Out io.Writer
}

// errNotRegularFile is returned when the image path is a directory or device.
var errNotRegularFile = errors.New("image is not a regular file")

// Run computes the image digest and writes the descriptor JSON.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "packager")

	descriptor, err := Describe(ctx, opts)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}

	data = append(data, '\n')

	if opts.OutputPath != "" {
		if err = os.WriteFile(filepath.Clean(opts.OutputPath), data, config.DefaultFilePermissions); err != nil {
			return fmt.Errorf("write descriptor: %w", err)
		}

		printNextSteps(ctx, opts)

		return nil
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}

	return nil
}

// Describe returns the validated descriptor for the image in opts.
func Describe(ctx context.Context, opts *Options) (*firmware.Descriptor, error) {
	info, err := os.Stat(opts.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", opts.ImagePath, errNotRegularFile)
	}

	digest, err := integrity.New(opts.DigestCommand).Digest(ctx, opts.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("compute digest: %w", err)
	}

	descriptor := &firmware.Descriptor{
		Version:     strings.TrimSpace(opts.Version),
		ContentHash: digest,
		ArtifactURL: strings.TrimSpace(opts.URL),
	}

	if err = descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}

	logger.InfoKV(ctx, "Image described",
		"path", opts.ImagePath, "bytes", info.Size(), "version", descriptor.Version, "sha256", digest)

	return descriptor, nil
}

// printNextSteps logs human-readable guidance for publishing the release.
func printNextSteps(ctx context.Context, opts *Options) {
	var builder strings.Builder

	builder.WriteString("Upload ")
	builder.WriteString(opts.ImagePath)
	builder.WriteString(" so that it is served at ")
	builder.WriteString(opts.URL)
	builder.WriteString(",\nthen make the update service answer devices with the contents of ")
	builder.WriteString(opts.OutputPath)
	builder.WriteString(".\nDevices already reporting version ")
	builder.WriteString(opts.Version)
	builder.WriteString(" will stay up to date; every other version will install this image.")

	logger.Info(ctx, builder.String())
}
