package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
)

// writeScript creates an executable shell script in a temp directory.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "install.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	return path
}

// verifiedArtifact stages contents and marks them verified with their real digest.
func verifiedArtifact(t *testing.T, contents string) firmware.StagedArtifact {
	t.Helper()

	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	sum := sha256.Sum256([]byte(contents))

	return firmware.StagedArtifact{
		Path:         path,
		ByteLength:   int64(len(contents)),
		VerifiedHash: hex.EncodeToString(sum[:]),
	}
}

// TestCommandInstaller_PassesPathAsSoleArgument checks argv and the captured diagnostic.
func TestCommandInstaller_PassesPathAsSoleArgument(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo "args=$# path=$1"`)
	artifact := verifiedArtifact(t, "firmware")

	outcome, err := NewCommandInstaller([]string{script}, time.Minute).Install(context.Background(), artifact)
	require.NoError(t, err)
	require.Equal(t, "args=1 path="+artifact.Path, outcome.Diagnostic)
}

// TestCommandInstaller_KeepsLeadingArguments appends the path after configured arguments.
func TestCommandInstaller_KeepsLeadingArguments(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo "$1 $2"`)
	artifact := verifiedArtifact(t, "firmware")

	outcome, err := NewCommandInstaller([]string{script, "--debug"}, 0).Install(context.Background(), artifact)
	require.NoError(t, err)
	require.Equal(t, "--debug "+artifact.Path, outcome.Diagnostic)
}

// TestCommandInstaller_Rejected keeps the installer output verbatim on a non-zero exit.
func TestCommandInstaller_Rejected(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `echo "flash failed: bad sector"; echo "detail" >&2; exit 1`)

	_, err := NewCommandInstaller([]string{script}, time.Minute).
		Install(context.Background(), verifiedArtifact(t, "firmware"))
	require.ErrorIs(t, err, firmware.ErrInstallerRejected)

	var typed *firmware.Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, "flash failed: bad sector", typed.Diagnostic)
	require.Equal(t, firmware.StageInstall, typed.Stage)
	require.Contains(t, typed.Error(), "detail")
}

// TestCommandInstaller_MissingProgram reports a command that cannot start as rejected.
func TestCommandInstaller_MissingProgram(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := NewCommandInstaller([]string{missing}, time.Minute).
		Install(context.Background(), verifiedArtifact(t, "firmware"))
	require.ErrorIs(t, err, firmware.ErrInstallerRejected)
}

// TestCommandInstaller_Timeout stops a hanging installer.
func TestCommandInstaller_Timeout(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `exec sleep 5`)

	started := time.Now()
	_, err := NewCommandInstaller([]string{script}, 100*time.Millisecond).
		Install(context.Background(), verifiedArtifact(t, "firmware"))
	require.ErrorIs(t, err, firmware.ErrInstallerRejected)
	require.Less(t, time.Since(started), 4*time.Second)
}

// TestInstallers_RefuseUnverifiedArtifacts never runs anything for an unverified image.
func TestInstallers_RefuseUnverifiedArtifacts(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "ran")
	script := writeScript(t, `touch "`+marker+`"`)

	artifact := verifiedArtifact(t, "firmware")
	artifact.VerifiedHash = ""

	_, err := NewCommandInstaller([]string{script}, time.Minute).Install(context.Background(), artifact)
	require.ErrorIs(t, err, firmware.ErrInstallerRejected)

	_, err = os.Stat(marker)
	require.ErrorIs(t, err, os.ErrNotExist)

	target := filepath.Join(t.TempDir(), "slot")
	_, err = NewImageInstaller(target).Install(context.Background(), artifact)
	require.ErrorIs(t, err, firmware.ErrInstallerRejected)
}

// TestImageInstaller_ReplacesTarget swaps the target contents and leaves no backup behind.
func TestImageInstaller_ReplacesTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "slot-b.img")
	require.NoError(t, os.WriteFile(target, []byte("old slot"), 0o644))

	artifact := verifiedArtifact(t, "new firmware image")

	outcome, err := NewImageInstaller(target).Install(context.Background(), artifact)
	require.NoError(t, err)
	require.Contains(t, outcome.Diagnostic, target)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "new firmware image", string(contents))

	_, err = os.Stat(target + ".old")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestImageInstaller_CreatesMissingTarget installs into a target that did not exist yet.
func TestImageInstaller_CreatesMissingTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "firmware.bin")

	_, err := NewImageInstaller(target).Install(context.Background(), verifiedArtifact(t, "payload"))
	require.NoError(t, err)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "payload", string(contents))
}

// TestImageInstaller_ChecksumRecheck refuses an image altered after verification.
func TestImageInstaller_ChecksumRecheck(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "slot")
	require.NoError(t, os.WriteFile(target, []byte("old slot"), 0o644))

	artifact := verifiedArtifact(t, "verified image")
	require.NoError(t, os.WriteFile(artifact.Path, []byte("tampered image"), 0o644))

	_, err := NewImageInstaller(target).Install(context.Background(), artifact)
	require.ErrorIs(t, err, firmware.ErrInstallerRejected)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "old slot", string(contents))
}

// TestNew_SelectsInstaller picks the image installer only when a target is configured.
func TestNew_SelectsInstaller(t *testing.T) {
	t.Parallel()

	require.IsType(t, &ImageInstaller{}, New(config.InstallerConfig{Target: "/tmp/slot"}))
	require.IsType(t, &CommandInstaller{}, New(config.InstallerConfig{Command: []string{"upgrade_tool"}}))
}
