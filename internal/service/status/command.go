// Package status probes a running daemon's gRPC health service.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/oshokin/ota-client/internal/api/grpc/health"
	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/service/common"
)

// Options controls the status probe.
type Options struct {
	// ConfigPath is read for daemon.health_address when Address is empty.
	ConfigPath string
	// Address is the daemon health address.
	Address string
	// Service is the health service name; defaults to "ota".
	Service string
	// JSON prints the raw health response as protobuf JSON.
	JSON bool
	// Timeout bounds the health check.
	Timeout time.Duration
	// Out receives the result; defaults to stdout.
	Out io.Writer
}

var (
	// ErrNotServing is returned when the daemon reports anything but SERVING.
	ErrNotServing = errors.New("daemon is not serving")
	// errNoAddress is returned when no health address is known.
	errNoAddress = errors.New("no health address: pass --addr or set daemon.health_address")
)

// Run checks the daemon health and prints the status.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "status")

	address, err := resolveAddress(opts)
	if err != nil {
		return err
	}

	service := opts.Service
	if service == "" {
		service = health.ServiceName
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	client, err := common.Dial(ctx, address, common.WithCallTimeout(opts.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	response, err := client.Check(ctx, service)
	if err != nil {
		return err
	}

	if opts.JSON {
		data, marshalErr := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(response)
		if marshalErr != nil {
			return fmt.Errorf("encode response: %w", marshalErr)
		}

		_, _ = fmt.Fprintln(out, string(data))
	} else {
		_, _ = fmt.Fprintf(out, "%s: %s\n", service, response.GetStatus())
	}

	if response.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s: %w", response.GetStatus(), ErrNotServing)
	}

	return nil
}

// resolveAddress prefers the explicit address, then the configuration file.
func resolveAddress(opts *Options) (string, error) {
	if opts.Address != "" {
		return opts.Address, nil
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errNoAddress, err)
	}

	if cfg.Daemon.HealthAddress == "" {
		return "", errNoAddress
	}

	return cfg.Daemon.HealthAddress, nil
}
