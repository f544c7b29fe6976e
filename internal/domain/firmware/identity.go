package firmware

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
)

// DeviceIdentity is the immutable 128-bit identifier of a device.
type DeviceIdentity struct {
	id uuid.UUID
}

// ParseDeviceIdentity accepts the canonical hyphenated UUID form only.
// Braced, URN and hex-only spellings as well as the nil UUID are rejected.
func ParseDeviceIdentity(raw string) (DeviceIdentity, error) {
	id, err := uuid.FromString(raw)
	if err != nil {
		return DeviceIdentity{}, NewError(StageIdentity, KindInvalidIdentity, err)
	}

	if !strings.EqualFold(id.String(), raw) {
		return DeviceIdentity{}, NewError(StageIdentity, KindInvalidIdentity,
			fmt.Errorf("%q is not in canonical form", raw))
	}

	if id == uuid.Nil {
		return DeviceIdentity{}, NewError(StageIdentity, KindInvalidIdentity, errNilIdentity)
	}

	return DeviceIdentity{id: id}, nil
}

// MustParseDeviceIdentity is ParseDeviceIdentity for constants in tests and defaults.
func MustParseDeviceIdentity(raw string) DeviceIdentity {
	identity, err := ParseDeviceIdentity(raw)
	if err != nil {
		panic(err)
	}

	return identity
}

// String returns the lowercase canonical form sent to the update service.
func (d DeviceIdentity) String() string {
	return d.id.String()
}

// IsZero reports whether the identity was never parsed.
func (d DeviceIdentity) IsZero() bool {
	return d.id == uuid.Nil
}
