// Package imageref resolves base image references into pinned,
// content-addressed root filesystems.
package imageref

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrResolution is returned when a base reference cannot be resolved:
// unknown repository or tag, or an unreachable registry. No retries happen
// here; callers wrap with their own retry policy if they want one.
var ErrResolution = errors.New("base image resolution failed")

var tagRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]{0,127}$`)

// Ref identifies an immutable starting filesystem by (repository, tag).
type Ref struct {
	Repository string
	Tag        string
}

// Parse splits "repository:tag". The tag is required: builds pin their base
// explicitly instead of floating on a default.
func Parse(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty reference", ErrResolution)
	}

	// The last colon separates the tag, unless it belongs to a registry
	// port (in which case no tag was given).
	i := strings.LastIndex(s, ":")
	if i < 0 || strings.Contains(s[i+1:], "/") {
		return Ref{}, fmt.Errorf("%w: reference %q has no tag", ErrResolution, s)
	}

	ref := Ref{Repository: s[:i], Tag: s[i+1:]}
	if ref.Repository == "" {
		return Ref{}, fmt.Errorf("%w: reference %q has no repository", ErrResolution, s)
	}
	if !tagRe.MatchString(ref.Tag) {
		return Ref{}, fmt.Errorf("%w: invalid tag %q", ErrResolution, ref.Tag)
	}
	return ref, nil
}

func (r Ref) String() string {
	return r.Repository + ":" + r.Tag
}
