package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/service/updater"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.yaml"))
	report, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, report)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns the same report.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "state", "ota-client-state.yaml")
	repo := NewFileRepository(file)

	started := time.Now().UTC().Truncate(time.Second)
	want := &updater.Report{
		State:          updater.StateInstallFailed,
		Trail:          []updater.State{updater.StateIdle, updater.StateQuerying, updater.StateInstallFailed},
		CurrentVersion: "v2.0",
		Descriptor: &firmware.Descriptor{
			Version:     "v2.1",
			ContentHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
			ArtifactURL: "http://x/fw.bin",
		},
		Install:     &firmware.InstallOutcome{Diagnostic: "flash failed: bad sector"},
		Err:         errors.New("install: installer_rejected"),
		Failure:     "install: installer_rejected",
		FailureKind: "installer_rejected",
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.State, got.State)
	require.Equal(t, want.Trail, got.Trail)
	require.Equal(t, want.Descriptor, got.Descriptor)
	require.Equal(t, want.Install, got.Install)
	require.Equal(t, want.Failure, got.Failure)
	require.Equal(t, 3*time.Second, got.Duration())
	require.NoError(t, got.Err)

	info, err := os.Stat(file)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

// TestFileRepository_SaveNil refuses to write an empty report.
func TestFileRepository_SaveNil(t *testing.T) {
	t.Parallel()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "state.yaml"))
	require.Error(t, repo.Save(context.Background(), nil))
}
