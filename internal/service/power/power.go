// Package power restarts the device once new firmware is installed.
package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/oshokin/ota-client/internal/logger"
)

// windowsRebootTimeout is the delay in seconds for the Windows reboot command.
const windowsRebootTimeout = "0"

// ErrUnsupportedOS indicates the current OS has no default reboot command.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// Rebooter starts a reboot command.
type Rebooter struct {
	// command is run as-is; empty means the OS default.
	command []string
}

// NewRebooter creates a rebooter running command, or the OS default when command is empty.
func NewRebooter(command []string) *Rebooter {
	return &Rebooter{command: append([]string(nil), command...)}
}

// Reboot starts the reboot command and returns without waiting for it;
// the OS takes over the rest. The command outlives ctx cancellation.
func (r *Rebooter) Reboot(ctx context.Context) error {
	command := r.command
	if len(command) == 0 {
		var err error

		if command, err = DefaultCommand(); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Rebooting device", "command", strings.Join(command, " "))

	//nolint:gosec // The command comes from the operator's configuration.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), command[0], command[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start reboot command: %w", err)
	}

	// Reap the child so it does not linger as a zombie if the reboot is slow.
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

// DefaultCommand returns the built-in reboot command for this OS:
// - Linux/macOS: `shutdown -r now`
// - Windows:     `shutdown.exe -r -f -t 0` (force, no delay).
func DefaultCommand() ([]string, error) {
	osName := strings.ToLower(runtime.GOOS)

	switch {
	case strings.Contains(osName, "linux") || strings.Contains(osName, "darwin"):
		return []string{"shutdown", "-r", "now"}, nil
	case strings.Contains(osName, "windows"):
		return []string{"shutdown.exe", "-r", "-f", "-t", windowsRebootTimeout}, nil
	default:
		return nil, fmt.Errorf("unsupported operating system: %s: %w", runtime.GOOS, ErrUnsupportedOS)
	}
}
