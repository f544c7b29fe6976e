package firmware

// DecisionKind enumerates the outcomes of comparing versions.
type DecisionKind int

const (
	// UpToDate means the offered version equals the running one.
	UpToDate DecisionKind = iota
	// Available means the offered version differs and should be installed.
	Available
)

// String implements fmt.Stringer.
func (k DecisionKind) String() string {
	if k == UpToDate {
		return "up_to_date"
	}

	return "available"
}

// Decision is the result of Decide. Descriptor is set only when Available.
type Decision struct {
	Kind       DecisionKind
	Descriptor *Descriptor
}

// Decide compares the offered version with the running one byte for byte.
// Versions are opaque tokens: a differing "older" version is still Available.
func Decide(descriptor Descriptor, currentVersion string) Decision {
	if descriptor.Version == currentVersion {
		return Decision{Kind: UpToDate}
	}

	return Decision{
		Kind:       Available,
		Descriptor: &descriptor,
	}
}

// IsUpToDate is a shorthand for Kind == UpToDate.
func (d Decision) IsUpToDate() bool {
	return d.Kind == UpToDate
}
