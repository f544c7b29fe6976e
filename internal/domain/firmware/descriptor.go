package firmware

import (
	"errors"
	"fmt"
	"net/url"
)

// SHA256HexLength is the length of a hex-encoded SHA-256 digest.
const SHA256HexLength = 64

var (
	errNilIdentity      = errors.New("nil device identity")
	errEmptyVersion     = errors.New("version is empty")
	errEmptyContentHash = errors.New("sha256 is empty")
	errEmptyArtifactURL = errors.New("url is empty")
	errBadContentHash   = errors.New("sha256 must be 64 lowercase hex characters")
	errRelativeURL      = errors.New("url must be absolute")
)

// Descriptor identifies the firmware image the update service offers.
type Descriptor struct {
	// Version is an opaque version token compared by exact equality.
	Version string `json:"version" yaml:"version"`
	// ContentHash is the lowercase hex SHA-256 of the image.
	ContentHash string `json:"sha256" yaml:"sha256"`
	// ArtifactURL is the absolute download location of the image.
	ArtifactURL string `json:"url" yaml:"url"`
}

// Validate checks that all three fields are present and well formed.
func (d *Descriptor) Validate() error {
	switch {
	case d.Version == "":
		return errEmptyVersion
	case d.ContentHash == "":
		return errEmptyContentHash
	case d.ArtifactURL == "":
		return errEmptyArtifactURL
	}

	if !IsSHA256Hex(d.ContentHash) {
		return fmt.Errorf("%q: %w", d.ContentHash, errBadContentHash)
	}

	parsed, err := url.Parse(d.ArtifactURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%q: %w", d.ArtifactURL, errRelativeURL)
	}

	return nil
}

// IsSHA256Hex reports whether s looks like a lowercase hex SHA-256 digest.
func IsSHA256Hex(s string) bool {
	if len(s) != SHA256HexLength {
		return false
	}

	for i := range len(s) {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
