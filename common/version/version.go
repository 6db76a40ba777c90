// Package version implements gateway protocol and software versioning.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a protocol or a software version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// ToU64 returns the version as platform-dependent uint64.
func (v Version) ToU64() uint64 {
	return (uint64(v.Major) << 32) | (uint64(v.Minor) << 16) | (uint64(v.Patch))
}

// FromU64 returns the version from platform-dependent uint64.
func FromU64(v uint64) Version {
	return Version{
		Major: uint16((v >> 32) & 0xffff),
		Minor: uint16((v >> 16) & 0xffff),
		Patch: uint16(v & 0xffff),
	}
}

// String returns the version as a string.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MajorMinor extracts major and minor segments of the Version only.
//
// This is useful for comparing protocol versions since the patch segment
// can be ignored.
func (v Version) MajorMinor() Version {
	return Version{
		Major: v.Major,
		Minor: v.Minor,
	}
}

// Parse parses a "major.minor.patch" version string. A leading "v" is
// accepted.
func Parse(s string) (Version, error) {
	split := strings.Split(strings.TrimPrefix(s, "v"), ".")
	if len(split) != 3 {
		return Version{}, fmt.Errorf("version: malformed version: '%s'", s)
	}

	var parts [3]uint16
	for i, v := range split {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("version: malformed version segment '%s': %w", v, err)
		}
		parts[i] = uint16(n)
	}

	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// VersionUndefined represents an undefined version.
const VersionUndefined = "undefined"

var (
	// SoftwareVersion represents the delegator node's version and should
	// be set by the linker.
	SoftwareVersion = "0.0-unset"

	// GatewayProtocol versions the gateway's gRPC interface and the
	// persisted state layout.
	//
	// NOTE: Any change in the major or minor versions is a breaking
	//       change for clients and stored state.
	GatewayProtocol = Version{Major: 1, Minor: 0, Patch: 0}
)
