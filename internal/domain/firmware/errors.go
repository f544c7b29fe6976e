package firmware

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names the pipeline step an error originated from.
type Stage string

// Pipeline stages.
const (
	StageIdentity Stage = "identity"
	StageResolve  Stage = "resolve"
	StageFetch    Stage = "fetch"
	StageVerify   Stage = "verify"
	StageInstall  Stage = "install"
)

// Kind is the closed set of failure kinds a stage can report.
type Kind int

// Failure kinds. IntegrityMismatch is used only to describe a mismatched
// run to callers; the verifier itself reports a mismatch as a result.
const (
	KindUnknown Kind = iota
	KindInvalidIdentity
	KindServiceError
	KindMalformedResponse
	KindNetworkFailure
	KindWriteFailure
	KindComputeFailure
	KindIntegrityMismatch
	KindInstallerRejected
)

//nolint:gochecknoglobals // Lookup table for Kind.String.
var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindInvalidIdentity:   "invalid_identity",
	KindServiceError:      "service_error",
	KindMalformedResponse: "malformed_response",
	KindNetworkFailure:    "network_failure",
	KindWriteFailure:      "write_failure",
	KindComputeFailure:    "compute_failure",
	KindIntegrityMismatch: "integrity_mismatch",
	KindInstallerRejected: "installer_rejected",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the typed failure returned by every pipeline stage.
type Error struct {
	// Stage is where the failure happened.
	Stage Stage
	// Kind is the failure class callers branch on.
	Kind Kind
	// StatusCode is the HTTP status for ServiceError and HTTP-level NetworkFailure.
	StatusCode int
	// Diagnostic is the installer output for InstallerRejected.
	Diagnostic string
	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They match any *Error of the same Kind regardless of stage.
var (
	ErrInvalidIdentity   = &Error{Kind: KindInvalidIdentity}
	ErrServiceError      = &Error{Kind: KindServiceError}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrNetworkFailure    = &Error{Kind: KindNetworkFailure}
	ErrWriteFailure      = &Error{Kind: KindWriteFailure}
	ErrComputeFailure    = &Error{Kind: KindComputeFailure}
	ErrIntegrityMismatch = &Error{Kind: KindIntegrityMismatch}
	ErrInstallerRejected = &Error{Kind: KindInstallerRejected}
)

// NewError builds a stage error of the given kind around cause.
func NewError(stage Stage, kind Kind, cause error) *Error {
	return &Error{
		Stage: stage,
		Kind:  kind,
		Err:   cause,
	}
}

// NewServiceError reports a non-success status from the update service.
func NewServiceError(statusCode int) *Error {
	return &Error{
		Stage:      StageResolve,
		Kind:       KindServiceError,
		StatusCode: statusCode,
	}
}

// NewInstallerRejected reports a failed installation with its output kept verbatim.
func NewInstallerRejected(diagnostic string, cause error) *Error {
	return &Error{
		Stage:      StageInstall,
		Kind:       KindInstallerRejected,
		Diagnostic: diagnostic,
		Err:        cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Stage != "" {
		b.WriteString(string(e.Stage))
		b.WriteString(": ")
	}

	b.WriteString(e.Kind.String())

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}

	if e.Diagnostic != "" {
		fmt.Fprintf(&b, ": %s", e.Diagnostic)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, and by Stage when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	if t.Kind != e.Kind {
		return false
	}

	return t.Stage == "" || t.Stage == e.Stage
}

// KindOf extracts the failure kind from any error chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}

	return KindUnknown
}

// StageOf extracts the failing stage from any error chain.
func StageOf(err error) Stage {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Stage
	}

	return ""
}
