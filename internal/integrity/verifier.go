package integrity

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
)

// errLengthChanged is returned when the staged file no longer has the length that was written.
var errLengthChanged = errors.New("staged file length differs from the downloaded length")

// Verifier checks staged artifacts against an expected digest.
type Verifier struct {
	computer DigestComputer
}

// NewVerifier creates a verifier using computer, or in-process SHA-256 when nil.
func NewVerifier(computer DigestComputer) *Verifier {
	if computer == nil {
		computer = SHA256Computer{}
	}

	return &Verifier{computer: computer}
}

// Verify hashes the whole staged file and compares it to expected.
// A mismatch is a result; only an unreadable or unhashable file is an error.
func (v *Verifier) Verify(
	ctx context.Context,
	artifact firmware.StagedArtifact,
	expected string,
) (firmware.VerificationResult, error) {
	info, err := os.Stat(artifact.Path)
	if err != nil {
		return firmware.VerificationResult{}, computeFailure(fmt.Errorf("stat staged file: %w", err))
	}

	if info.Size() != artifact.ByteLength {
		return firmware.VerificationResult{}, computeFailure(
			fmt.Errorf("%w: have %d, want %d", errLengthChanged, info.Size(), artifact.ByteLength))
	}

	computed, err := v.computer.Digest(ctx, artifact.Path)
	if err != nil {
		return firmware.VerificationResult{}, computeFailure(err)
	}

	if !firmware.IsSHA256Hex(computed) {
		return firmware.VerificationResult{}, computeFailure(fmt.Errorf("%w: %q", errNotSHA256, computed))
	}

	result := firmware.VerificationResult{
		Matched:      computed == expected,
		ComputedHash: computed,
	}

	logger.InfoKV(ctx, "Staged image verified",
		"path", artifact.Path, "expected", expected, "computed", computed, "matched", result.Matched)

	return result, nil
}

func computeFailure(cause error) error {
	return firmware.NewError(firmware.StageVerify, firmware.KindComputeFailure, cause)
}
