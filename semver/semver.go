// Package semver implements the minimal major.minor.patch comparison
// the startup gate and WEP handshake need (spec.md §6 "contract_min ≤
// getProtocolVersion() ≤ contract_max"; §4.3 Hello/HelloAck range
// negotiation). It deliberately does not support build metadata or
// pre-release tags — the protocol surface this compares is a closed,
// internally-controlled set of versions.
package semver

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Version is a parsed major.minor.patch triple.
type Version struct {
	Major, Minor, Patch int
}

// Parse accepts "X.Y.Z", "X.Y" (patch defaults to 0) or "X".
func Parse(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 3)
	var v Version
	var err error
	if v.Major, err = atoi(parts, 0); err != nil {
		return v, errors.Wrapf(err, "semver: parsing %q", s)
	}
	if v.Minor, err = atoi(parts, 1); err != nil {
		return v, errors.Wrapf(err, "semver: parsing %q", s)
	}
	if v.Patch, err = atoi(parts, 2); err != nil {
		return v, errors.Wrapf(err, "semver: parsing %q", s)
	}
	return v, nil
}

func atoi(parts []string, idx int) (int, error) {
	if idx >= len(parts) {
		return 0, nil
	}
	return strconv.Atoi(parts[idx])
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater
// than b.
func Compare(a, b Version) int {
	switch {
	case a.Major != b.Major:
		return sign(a.Major - b.Major)
	case a.Minor != b.Minor:
		return sign(a.Minor - b.Minor)
	default:
		return sign(a.Patch - b.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// InRange reports whether v falls within [min, max] inclusive.
func InRange(v, min, max Version) bool {
	return Compare(v, min) >= 0 && Compare(v, max) <= 0
}

// RangesOverlap reports whether [min1,max1] and [min2,max2] share at
// least one version — the WEP Hello/HelloAck negotiation test.
func RangesOverlap(min1, max1, min2, max2 Version) bool {
	return Compare(min1, max2) <= 0 && Compare(min2, max1) <= 0
}
