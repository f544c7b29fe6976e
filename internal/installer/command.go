package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
)

var (
	// errNoCommand is returned when the installer has nothing to run.
	errNoCommand = errors.New("installer command is empty")
	// errNotVerified is returned for artifacts that did not pass verification.
	errNotVerified = errors.New("artifact has not been verified")
)

// CommandInstaller runs an external flashing program with the staged path as its sole argument.
type CommandInstaller struct {
	// command is the program followed by fixed leading arguments.
	command []string
	// timeout bounds one installation.
	timeout time.Duration
}

// NewCommandInstaller creates an installer running command.
// A non-positive timeout falls back to the config default.
func NewCommandInstaller(command []string, timeout time.Duration) *CommandInstaller {
	if timeout <= 0 {
		timeout = config.DefaultInstallTimeout
	}

	return &CommandInstaller{
		command: append([]string(nil), command...),
		timeout: timeout,
	}
}

// Install implements the pipeline installer. Standard output is returned as
// the diagnostic on success and carried in the error on failure.
func (i *CommandInstaller) Install(ctx context.Context, artifact firmware.StagedArtifact) (firmware.InstallOutcome, error) {
	if len(i.command) == 0 {
		return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", errNoCommand)
	}

	if !artifact.IsVerified() {
		return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", errNotVerified)
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	args := append(append([]string{}, i.command[1:]...), artifact.Path)

	var stdout, stderr bytes.Buffer

	//nolint:gosec // The command comes from the operator's configuration.
	cmd := exec.CommandContext(callCtx, i.command[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.InfoKV(ctx, "Running installer", "command", i.command[0], "path", artifact.Path)

	err := cmd.Run()
	diagnostic := strings.TrimSpace(stdout.String())

	if err != nil {
		if errOutput := strings.TrimSpace(stderr.String()); errOutput != "" {
			err = fmt.Errorf("%w: %s", err, errOutput)
		}

		return firmware.InstallOutcome{}, firmware.NewInstallerRejected(diagnostic, err)
	}

	logger.InfoKV(ctx, "Installer finished", "diagnostic", diagnostic)

	return firmware.InstallOutcome{Diagnostic: diagnostic}, nil
}
