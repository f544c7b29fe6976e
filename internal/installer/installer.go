package installer

import (
	"context"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
)

// Installer installs a verified staged artifact.
type Installer interface {
	Install(ctx context.Context, artifact firmware.StagedArtifact) (firmware.InstallOutcome, error)
}

// New picks the installer configured in cfg: an image target wins when set,
// otherwise the external command is used.
func New(cfg config.InstallerConfig) Installer {
	if cfg.Target != "" {
		return NewImageInstaller(cfg.Target)
	}

	return NewCommandInstaller(cfg.Command, cfg.Timeout)
}
