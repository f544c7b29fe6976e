package installer

import (
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"

	// Ensure SHA256 is available for the checksum re-check.
	_ "crypto/sha256"
)

// DefaultTargetMode is the mode of a target file created by ImageInstaller.
const DefaultTargetMode os.FileMode = 0o755

// errEmptyTarget is returned when ImageInstaller has no target file.
var errEmptyTarget = errors.New("installer target is empty")

// ImageInstaller atomically replaces a target file (an A/B slot image or a
// self-updating binary) with the staged image. go-update re-checks the
// SHA-256 while applying, so a file altered after verification is refused.
type ImageInstaller struct {
	// target is the file being replaced.
	target string
	// mode is applied to the replaced file.
	mode os.FileMode
}

// NewImageInstaller creates an installer replacing target.
func NewImageInstaller(target string) *ImageInstaller {
	return &ImageInstaller{
		target: target,
		mode:   DefaultTargetMode,
	}
}

// Install implements the pipeline installer.
func (i *ImageInstaller) Install(ctx context.Context, artifact firmware.StagedArtifact) (firmware.InstallOutcome, error) {
	if i.target == "" {
		return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", errEmptyTarget)
	}

	if !artifact.IsVerified() {
		return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", errNotVerified)
	}

	checksum, err := hex.DecodeString(artifact.VerifiedHash)
	if err != nil {
		return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", fmt.Errorf("decode checksum: %w", err))
	}

	image, err := os.Open(filepath.Clean(artifact.Path))
	if err != nil {
		return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", fmt.Errorf("open staged image: %w", err))
	}

	defer func() {
		_ = image.Close()
	}()

	// go-update renames over an existing file only.
	if _, err = os.Stat(i.target); errors.Is(err, os.ErrNotExist) {
		var created *os.File

		if created, err = os.OpenFile(i.target, os.O_CREATE|os.O_WRONLY, i.mode); err != nil {
			return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", fmt.Errorf("create target: %w", err))
		}

		_ = created.Close()
	}

	logger.InfoKV(ctx, "Replacing target with staged image", "target", i.target, "path", artifact.Path)

	options := goupdate.Options{
		TargetPath: i.target,
		TargetMode: i.mode,
		Checksum:   checksum,
		Hash:       crypto.SHA256,
	}

	if err = goupdate.Apply(image, options); err != nil {
		if rollbackErr := goupdate.RollbackError(err); rollbackErr != nil {
			logger.ErrorKV(ctx, "Failed to roll back target after a failed apply",
				"target", i.target, "error", rollbackErr)
		}

		return firmware.InstallOutcome{}, firmware.NewInstallerRejected("", fmt.Errorf("apply image: %w", err))
	}

	oldFileName := i.target + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	diagnostic := fmt.Sprintf("replaced %s with %d bytes", i.target, artifact.ByteLength)

	return firmware.InstallOutcome{Diagnostic: diagnostic}, nil
}
