package updater

import (
	"time"

	"github.com/oshokin/ota-client/internal/domain/firmware"
)

// Report describes one pipeline run. It is also what the daemon persists.
type Report struct {
	// State is the terminal state of the run.
	State State `yaml:"state"`
	// Trail lists every state entered, starting with Idle.
	Trail []State `yaml:"trail"`
	// CurrentVersion is the version the device reported.
	CurrentVersion string `yaml:"current_version"`
	// Descriptor is what the service answered, if it answered.
	Descriptor *firmware.Descriptor `yaml:"descriptor,omitempty"`
	// Artifact is the staged image, if the download finished.
	Artifact *firmware.StagedArtifact `yaml:"artifact,omitempty"`
	// Verification is the digest comparison, if it ran.
	Verification *firmware.VerificationResult `yaml:"verification,omitempty"`
	// Install carries the installer diagnostic on success and on rejection.
	Install *firmware.InstallOutcome `yaml:"install,omitempty"`
	// Err is the stage error for Failed and InstallFailed.
	Err error `yaml:"-"`
	// Failure is Err rendered for persistence.
	Failure string `yaml:"failure,omitempty"`
	// FailureKind is the taxonomy kind of Err.
	FailureKind string `yaml:"failure_kind,omitempty"`
	// RebootErr is set when the post-install reboot command could not be started.
	RebootErr error `yaml:"-"`
	// RebootFailure is RebootErr rendered for persistence.
	RebootFailure string `yaml:"reboot_failure,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `yaml:"started_at"`
	// FinishedAt is when the run reached its terminal state.
	FinishedAt time.Time `yaml:"finished_at"`
}

// Succeeded reports whether the run ended UpToDate or Installed.
func (r *Report) Succeeded() bool {
	return r != nil && r.State.IsSuccess()
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// enter appends a state to the trail.
func (r *Report) enter(state State) {
	r.State = state
	r.Trail = append(r.Trail, state)
}

// fail moves the report to a terminal error state.
func (r *Report) fail(state State, err error) {
	r.enter(state)
	r.Err = err
	r.Failure = err.Error()
	r.FailureKind = firmware.KindOf(err).String()
}
