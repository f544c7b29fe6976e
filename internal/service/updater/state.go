package updater

import (
	"errors"
	"fmt"
)

// State is a step of the update state machine.
type State int

// Pipeline states. UpToDate, Mismatched, Installed, InstallFailed and Failed are terminal.
const (
	StateIdle State = iota
	StateQuerying
	StateUpToDate
	StateDescriptorReceived
	StateDownloading
	StateDownloaded
	StateVerifying
	StateMismatched
	StateVerified
	StateInstalling
	StateInstalled
	StateInstallFailed
	StateFailed
)

var errUnknownState = errors.New("unknown update state")

//nolint:gochecknoglobals // Lookup table for State.String.
var stateNames = map[State]string{
	StateIdle:               "idle",
	StateQuerying:           "querying",
	StateUpToDate:           "up_to_date",
	StateDescriptorReceived: "descriptor_received",
	StateDownloading:        "downloading",
	StateDownloaded:         "downloaded",
	StateVerifying:          "verifying",
	StateMismatched:         "mismatched",
	StateVerified:           "verified",
	StateInstalling:         "installing",
	StateInstalled:          "installed",
	StateInstallFailed:      "install_failed",
	StateFailed:             "failed",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets reports persist states by name.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("%d: %w", int(s), errUnknownState)
	}

	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}

	return fmt.Errorf("%q: %w", text, errUnknownState)
}

// IsTerminal reports whether the run ends in this state.
func (s State) IsTerminal() bool {
	switch s {
	case StateUpToDate, StateMismatched, StateInstalled, StateInstallFailed, StateFailed:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the state ends a run without a problem.
func (s State) IsSuccess() bool {
	return s == StateUpToDate || s == StateInstalled
}
