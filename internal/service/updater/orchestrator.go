package updater

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/oshokin/ota-client/internal/client/fetcher"
	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
)

// Resolver queries the update service.
type Resolver interface {
	Resolve(
		ctx context.Context,
		identity firmware.DeviceIdentity,
		currentVersion string,
		endpoint string,
	) (*firmware.Descriptor, error)
}

// Fetcher stages an image.
type Fetcher interface {
	Fetch(ctx context.Context, url, destination string) (firmware.StagedArtifact, error)
}

// Verifier compares a staged image to its expected digest.
type Verifier interface {
	Verify(ctx context.Context, artifact firmware.StagedArtifact, expected string) (firmware.VerificationResult, error)
}

// Installer installs a verified image.
type Installer interface {
	Install(ctx context.Context, artifact firmware.StagedArtifact) (firmware.InstallOutcome, error)
}

// Rebooter restarts the device after an installation.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// Request holds the caller-supplied inputs of one run.
type Request struct {
	// Identity is the device UUID sent to the service.
	Identity firmware.DeviceIdentity
	// CurrentVersion is the running firmware version.
	CurrentVersion string
	// Endpoint is the update service URL.
	Endpoint string
	// StagingPath is where the image is downloaded.
	StagingPath string
}

// Orchestrator sequences the pipeline components. It is safe to reuse across
// runs; concurrent runs on one staging path are refused by a marker file.
type Orchestrator struct {
	resolver  Resolver
	fetcher   Fetcher
	verifier  Verifier
	installer Installer
	rebooter  Rebooter
	cleanup   config.CleanupPolicy
	now       func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithCleanupPolicy sets what happens to the staged image after a run.
func WithCleanupPolicy(policy config.CleanupPolicy) Option {
	return func(o *Orchestrator) {
		if policy != "" {
			o.cleanup = policy
		}
	}
}

// WithRebooter sets the command started after a successful installation.
func WithRebooter(rebooter Rebooter) Option {
	return func(o *Orchestrator) {
		o.rebooter = rebooter
	}
}

// WithClock replaces time.Now for reports.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New wires the pipeline components.
func New(resolver Resolver, fetcher Fetcher, verifier Verifier, installer Installer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:  resolver,
		fetcher:   fetcher,
		verifier:  verifier,
		installer: installer,
		cleanup:   config.CleanupOnSuccess,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run performs one update attempt. The returned error is the stage error of
// a Failed or InstallFailed run, or ErrRunInProgress with a nil report.
// UpToDate and Mismatched are outcomes, not errors: check Report.State.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	ctx = logger.WithKV(ctx, "device", req.Identity.String())

	report := &Report{
		State:          StateIdle,
		Trail:          []State{StateIdle},
		CurrentVersion: req.CurrentVersion,
		StartedAt:      o.now(),
	}

	if req.Identity.IsZero() {
		report.fail(StateFailed, firmware.NewError(firmware.StageIdentity, firmware.KindInvalidIdentity, nil))
		report.FinishedAt = o.now()

		return report, report.Err
	}

	lock, err := acquireLock(ctx, req.StagingPath)
	if err != nil {
		return nil, err
	}

	defer lock.release(ctx)

	o.pipeline(ctx, req, report)
	o.removeStaged(ctx, req.StagingPath, report.State)

	report.FinishedAt = o.now()

	logger.InfoKV(ctx, "Update run finished",
		"state", report.State.String(), "duration", report.Duration().String())

	return report, report.Err
}

// pipeline moves report from Idle to a terminal state.
func (o *Orchestrator) pipeline(ctx context.Context, req Request, report *Report) {
	o.transition(ctx, report, StateQuerying)

	descriptor, err := o.resolver.Resolve(ctx, req.Identity, req.CurrentVersion, req.Endpoint)
	if err != nil {
		o.failed(ctx, report, StateFailed, err)
		return
	}

	report.Descriptor = descriptor

	if firmware.Decide(*descriptor, req.CurrentVersion).IsUpToDate() {
		o.transition(ctx, report, StateUpToDate)
		return
	}

	o.transition(ctx, report, StateDescriptorReceived)
	o.transition(ctx, report, StateDownloading)

	artifact, err := o.fetcher.Fetch(ctx, descriptor.ArtifactURL, req.StagingPath)
	if err != nil {
		o.failed(ctx, report, StateFailed, err)
		return
	}

	report.Artifact = &artifact

	o.transition(ctx, report, StateDownloaded)
	o.transition(ctx, report, StateVerifying)

	result, err := o.verifier.Verify(ctx, artifact, descriptor.ContentHash)
	if err != nil {
		o.failed(ctx, report, StateFailed, err)
		return
	}

	report.Verification = &result

	if !result.Matched {
		logger.WarnKV(ctx, "Staged image does not match the announced digest, not installing",
			"expected", descriptor.ContentHash, "computed", result.ComputedHash)
		o.transition(ctx, report, StateMismatched)

		return
	}

	artifact.VerifiedHash = result.ComputedHash
	report.Artifact = &artifact

	o.transition(ctx, report, StateVerified)
	o.transition(ctx, report, StateInstalling)

	outcome, err := o.installer.Install(ctx, artifact)
	if err != nil {
		var typed *firmware.Error
		if errors.As(err, &typed) && typed.Diagnostic != "" {
			report.Install = &firmware.InstallOutcome{Diagnostic: typed.Diagnostic}
		}

		o.failed(ctx, report, StateInstallFailed, err)

		return
	}

	report.Install = &outcome

	o.transition(ctx, report, StateInstalled)

	if o.rebooter == nil {
		return
	}

	if err = o.rebooter.Reboot(ctx); err != nil {
		report.RebootErr = err
		report.RebootFailure = err.Error()

		logger.ErrorKV(ctx, "Unable to start reboot after installation", "error", err)
	}
}

// transition records and logs a state change.
func (o *Orchestrator) transition(ctx context.Context, report *Report, next State) {
	logger.DebugKV(ctx, "Update state changed", "from", report.State.String(), "to", next.String())
	report.enter(next)
}

// failed records a terminal error state.
func (o *Orchestrator) failed(ctx context.Context, report *Report, state State, err error) {
	logger.ErrorKV(ctx, "Update run failed",
		"from", report.State.String(),
		"stage", string(firmware.StageOf(err)),
		"kind", firmware.KindOf(err).String(),
		"error", err)
	report.fail(state, err)
}

// removeStaged applies the cleanup policy to the staged image.
func (o *Orchestrator) removeStaged(ctx context.Context, stagingPath string, state State) {
	switch o.cleanup {
	case config.CleanupNever:
		return
	case config.CleanupAlways:
	default:
		if !state.IsSuccess() {
			return
		}
	}

	for _, path := range []string{stagingPath, stagingPath + fetcher.PartialSuffix} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove staged image", "path", path, "error", err)
		}
	}
}
