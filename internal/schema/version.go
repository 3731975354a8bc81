// Package schema provides the schema registry, change detection, and
// read-time field normalization for ingested payloads.
//
// The registry owns the canonical field-set history per endpoint. Versions
// form a strictly increasing sequence; once registered, a version's field set
// is immutable. Detecting a further change produces a new version, never an
// edit of an existing one.
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for registry operations.
// These can be used with errors.Is() for error checking.
var (
	// ErrUnknownSchemaVersion indicates an (endpoint, version) pair that was
	// never registered.
	ErrUnknownSchemaVersion = errors.New("unknown schema version")

	// ErrUnmappableSchemaVersion indicates that no chain of recorded versions
	// connects a payload's schema version to the endpoint's current version.
	ErrUnmappableSchemaVersion = errors.New("unmappable schema version")

	// ErrVersionConflict indicates an attempt to register a version that does
	// not extend the endpoint's version sequence.
	ErrVersionConflict = errors.New("schema version conflict")

	// ErrInvalidVersion indicates a version string that is not "MAJOR.MINOR".
	ErrInvalidVersion = errors.New("invalid schema version")

	// ErrEmptyFieldSet indicates an attempt to register a version with no fields.
	ErrEmptyFieldSet = errors.New("field set cannot be empty")
)

// Version is a semver-like "MAJOR.MINOR" schema version.
type Version struct {
	Major int
	Minor int
}

// InitialVersion is the version assigned to an endpoint's first recorded
// field set, and the sentinel returned for endpoints never registered.
var InitialVersion = Version{Major: 1, Minor: 0}

// ParseVersion parses a "MAJOR.MINOR" string.
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("%w: %q is not MAJOR.MINOR", ErrInvalidVersion, s)
	}

	majorN, err := strconv.Atoi(major)
	if err != nil || majorN < 0 {
		return Version{}, fmt.Errorf("%w: bad major in %q", ErrInvalidVersion, s)
	}

	minorN, err := strconv.Atoi(minor)
	if err != nil || minorN < 0 {
		return Version{}, fmt.Errorf("%w: bad minor in %q", ErrInvalidVersion, s)
	}

	return Version{Major: majorN, Minor: minorN}, nil
}

// String returns the "MAJOR.MINOR" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0, or 1 if v is older than, equal to, or newer than o.
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		if v.Major < o.Major {
			return -1
		}

		return 1
	}

	if v.Minor != o.Minor {
		if v.Minor < o.Minor {
			return -1
		}

		return 1
	}

	return 0
}

// NextMinor returns the next version under the default evolution policy
// (minor increment).
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// IsZero reports whether v is the zero value (not a registered version).
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0
}
