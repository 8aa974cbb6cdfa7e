package kgo

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed Major.Minor.Patch platform version.
type Version struct {
	Major, Minor, Patch int
}

// ParseVersion parses "Major.Minor.Patch", failing on anything else.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected Major.Minor.Patch", s)
	}
	var v Version
	nums := [3]*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: component %q is not a non-negative integer", s, p)
		}
		*nums[i] = n
	}
	return v, nil
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other, comparing lexicographically by component.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return cmpInt(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpInt(v.Minor, other.Minor)
	}
	return cmpInt(v.Patch, other.Patch)
}

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool { return v.Compare(other) >= 0 }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
