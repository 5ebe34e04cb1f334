package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is a dataset's semantic version: major.minor.
//
// Major bumps indicate breaking dimension changes (options removed or
// remapped); minor bumps are additive. Patch-level versions are not
// modelled - the source release file is the unit of change.
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses "1.0" or "v1.0" into a Version.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimPrefix(s, "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("invalid version %q: bad major part", s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Version{}, fmt.Errorf("invalid version %q: bad minor part", s)
	}

	return Version{Major: major, Minor: minor}, nil
}

// String returns the bare "major.minor" form used in API payloads.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MarshalJSON renders the version as its "major.minor" string.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON parses the "major.minor" string form.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// DirName returns the "v{major}.{minor}" form used for storage
// directory names.
func (v Version) DirName() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}

// NextMinor returns the next minor version (additive change).
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// NextMajor returns the next major version (breaking change).
func (v Version) NextMajor() Version {
	return Version{Major: v.Major + 1, Minor: 0}
}

// Compare returns -1, 0 or 1 ordering versions by major then minor.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}
