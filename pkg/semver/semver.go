// Package semver wraps Masterminds/semver/v3 with the version/range
// resolution rules the npm registry actually follows: caret and tilde
// ranges, "x" and "*" wildcards, dist-tags like "latest", and the bare
// "latest" fallback for an unparsable range.
package semver

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
)

// Version is a parsed, comparable semantic version.
type Version = semver.Version

// ParseVersion parses a concrete version string (e.g. "4.18.2").
func ParseVersion(raw string) (*Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, rjserrors.Wrap(rjserrors.ErrCodeInvalidRange, err, "invalid version %q", raw)
	}
	return v, nil
}

// Range is a parsed dependency range, e.g. "^1.2.0" or "workspace:*".
//
// "*" is a real semver range (the universal wildcard) and is handled by
// constr like any other constraint, so it resolves to the semver-max of
// the matching published versions. any is reserved for ranges that are
// not a semver constraint at all - an empty range, a dist-tag name like
// "latest" or "next", or a git/url specifier - which a resolver should
// treat as "accept whatever version String() names as a dist-tag, or
// otherwise any published version".
type Range struct {
	raw    string
	constr *semver.Constraints
	any    bool
}

// ParseRange parses an npm-style dependency range.
func ParseRange(raw string) (*Range, error) {
	if raw == "" {
		// An empty range is npm's shorthand for "latest".
		return &Range{raw: "latest", any: true}, nil
	}

	if c, err := semver.NewConstraint(raw); err == nil {
		// Covers "*", "^1.2.0", "~1.2.0", "1.x", ">=1.0.0 <2.0.0", and
		// every other real semver constraint syntax, including "*".
		return &Range{raw: raw, constr: c}, nil
	}

	// npm tolerates ranges this module does not need to resolve
	// precisely: dist-tag names ("latest", "next", "beta") and git/url
	// specifiers. Treat both as "any published version", letting the
	// caller prefer doc.DistTags[raw] when raw actually names a tag.
	return &Range{raw: raw, any: true}, nil
}

// String returns the original range text.
func (r *Range) String() string { return r.raw }

// Any reports whether the range matches any published version - an
// empty range, "latest", or a range this module could not parse. "*" is
// parsed as a semver constraint, so Any reports false for it.
func (r *Range) Any() bool { return r.any }

// Matches reports whether v satisfies the range.
func (r *Range) Matches(v *Version) bool {
	if r.any || r.constr == nil {
		return true
	}
	return r.constr.Check(v)
}

// Max returns the highest version in versions that satisfies the range.
// versions need not be sorted. Returns nil if none match.
func Max(r *Range, versions []*Version) *Version {
	var best *Version
	for _, v := range versions {
		if !r.Matches(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

// SortDescending sorts versions from highest to lowest, in place.
func SortDescending(versions []*Version) {
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].GreaterThan(versions[j])
	})
}
