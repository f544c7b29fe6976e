package firmware

// StagedArtifact is a firmware image fully written to local storage.
type StagedArtifact struct {
	// Path is the local staging location.
	Path string `yaml:"path"`
	// ByteLength is the number of bytes written.
	ByteLength int64 `yaml:"byte_length"`
	// VerifiedHash is the digest confirmed by verification. It stays empty
	// until the verifier reports a match, and installers refuse artifacts without it.
	VerifiedHash string `yaml:"verified_hash,omitempty"`
}

// IsVerified reports whether verification confirmed the artifact.
func (a StagedArtifact) IsVerified() bool {
	return a.VerifiedHash != ""
}

// VerificationResult is the outcome of comparing a computed digest to the expected one.
// A mismatch is a valid result, not an error.
type VerificationResult struct {
	Matched      bool   `yaml:"matched"`
	ComputedHash string `yaml:"computed_hash"`
}

// InstallOutcome carries what the installation procedure printed on success.
type InstallOutcome struct {
	Diagnostic string `yaml:"diagnostic"`
}
