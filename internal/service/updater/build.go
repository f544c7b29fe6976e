package updater

import (
	"fmt"

	"github.com/oshokin/ota-client/internal/client/fetcher"
	"github.com/oshokin/ota-client/internal/client/resolver"
	"github.com/oshokin/ota-client/internal/client/transport"
	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/installer"
	"github.com/oshokin/ota-client/internal/integrity"
	"github.com/oshokin/ota-client/internal/service/power"
)

// FromConfig wires the production components described by cfg.
// cfg must have passed config.Validate.
func FromConfig(cfg *config.Config, opts ...Option) *Orchestrator {
	httpClient := transport.NewHTTPClient(cfg.ConnectTimeout)

	options := []Option{WithCleanupPolicy(cfg.Cleanup)}
	if len(cfg.Installer.RebootCommand) > 0 {
		options = append(options, WithRebooter(power.NewRebooter(cfg.Installer.RebootCommand)))
	}

	return New(
		resolver.New(resolver.WithHTTPClient(httpClient), resolver.WithTimeout(cfg.ResolveTimeout)),
		fetcher.New(fetcher.WithHTTPClient(httpClient), fetcher.WithTimeout(cfg.FetchTimeout)),
		integrity.NewVerifier(integrity.New(cfg.Digest.Command)),
		installer.New(cfg.Installer),
		append(options, opts...)...,
	)
}

// RequestFromConfig builds the run inputs, re-reading the version file if one is configured.
func RequestFromConfig(cfg *config.Config) (Request, error) {
	currentVersion, err := cfg.ResolveCurrentVersion()
	if err != nil {
		return Request{}, fmt.Errorf("current version: %w", err)
	}

	return Request{
		Identity:       cfg.Identity(),
		CurrentVersion: currentVersion,
		Endpoint:       cfg.Endpoint,
		StagingPath:    cfg.StagingPath,
	}, nil
}
