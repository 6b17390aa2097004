// Package version parses Windows release labels and matches them against
// semantic version constraints.
//
// Release labels are short vendor names such as "10" or "11". They are read
// leniently as semantic versions ("11" becomes 11.0.0) so that target lists
// can be filtered with constraints like ">=11" or "10 || 11".
package version

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// String constants for operations (used in ErrVersionParseFailed)
const (
	OpParseRelease    = "parse_release"
	OpParseConstraint = "parse_constraint"
)

// ErrEmptyRelease is returned for an empty release label.
var ErrEmptyRelease = errors.New("release label cannot be empty")

// ErrVersionParseFailed represents a release label or constraint parsing error
type ErrVersionParseFailed struct {
	Version string
	Op      string
	Cause   error
}

func (e ErrVersionParseFailed) Error() string {
	return fmt.Sprintf("failed to parse %q in operation %s: %v", e.Version, e.Op, e.Cause)
}

func (e ErrVersionParseFailed) Unwrap() error {
	return e.Cause
}

func (e ErrVersionParseFailed) Is(target error) bool {
	var parseErr ErrVersionParseFailed
	return errors.As(target, &parseErr)
}

// ParseRelease parses a release label such as "11" into a semantic version.
func ParseRelease(label string) (*semver.Version, error) {
	if label == "" {
		return nil, ErrEmptyRelease
	}
	v, err := semver.NewVersion(label)
	if err != nil {
		return nil, ErrVersionParseFailed{
			Version: label,
			Op:      OpParseRelease,
			Cause:   err,
		}
	}
	return v, nil
}

// CompareReleases compares two release labels (-1 if a < b, 0 if equal, 1 if a > b).
func CompareReleases(a, b string) (int, error) {
	va, err := ParseRelease(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseRelease(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// SortReleasesDescending orders release labels newest first. Labels that do
// not parse keep their relative order after all parseable ones.
func SortReleasesDescending(labels []string) []string {
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.SliceStable(sorted, func(i, j int) bool {
		vi, errI := ParseRelease(sorted[i])
		vj, errJ := ParseRelease(sorted[j])
		switch {
		case errI != nil:
			return false
		case errJ != nil:
			return true
		default:
			return vi.GreaterThan(vj)
		}
	})
	return sorted
}

// Filter matches release labels against an optional constraint.
// The zero Filter and a Filter built from "" match every release.
type Filter struct {
	raw        string
	constraint *semver.Constraints
}

// NewFilter builds a Filter from a constraint expression such as ">=11".
// An empty expression yields a Filter that matches everything.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, ErrVersionParseFailed{
			Version: expr,
			Op:      OpParseConstraint,
			Cause:   err,
		}
	}
	return &Filter{raw: expr, constraint: c}, nil
}

// String returns the constraint expression the Filter was built from.
func (f *Filter) String() string {
	return f.raw
}

// Match reports whether the release label satisfies the constraint.
func (f *Filter) Match(release string) (bool, error) {
	if f == nil || f.constraint == nil {
		return true, nil
	}
	v, err := ParseRelease(release)
	if err != nil {
		return false, err
	}
	return f.constraint.Check(v), nil
}
