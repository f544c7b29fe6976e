package power

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestReboot_StartsConfiguredCommand runs the configured command in the background.
func TestReboot_StartsConfiguredCommand(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "rebooted")
	script := filepath.Join(t.TempDir(), "reboot.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ntouch \""+marker+"\"\n"), 0o755))

	require.NoError(t, NewRebooter([]string{script}).Reboot(context.Background()))

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

// TestReboot_MissingCommand reports a command that cannot start.
func TestReboot_MissingCommand(t *testing.T) {
	t.Parallel()

	err := NewRebooter([]string{filepath.Join(t.TempDir(), "missing")}).Reboot(context.Background())
	require.Error(t, err)
}

// TestDefaultCommand returns a shutdown invocation on supported systems.
func TestDefaultCommand(t *testing.T) {
	t.Parallel()

	command, err := DefaultCommand()

	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		require.NoError(t, err)
		require.Contains(t, command[0], "shutdown")
	default:
		require.ErrorIs(t, err, ErrUnsupportedOS)
	}
}
