package versions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrUnsatisfiable is the sentinel you can check with errors.Is.
var ErrUnsatisfiable = errors.New("no version satisfies constraint")

// Constraint is a parsed version constraint from a dependency manifest entry,
// e.g. ">=2.0", "==1.2.3", "~1.4". An empty constraint matches anything.
type Constraint struct {
	raw    string
	parsed *semver.Constraints
}

// ParseConstraint parses a manifest-style constraint string. Partial versions
// are zero-filled ("2" matches as "2.0.0") and the manifest's "==" spelling is
// accepted alongside "=".
func ParseConstraint(s string) (*Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &Constraint{}, nil
	}

	normalized := strings.ReplaceAll(s, "==", "=")
	parsed, err := semver.NewConstraint(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid constraint %q: %w", s, err)
	}

	return &Constraint{raw: s, parsed: parsed}, nil
}

func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.raw
}

// Check reports whether version satisfies the constraint. Invalid versions
// never satisfy a non-empty constraint.
func (c *Constraint) Check(version string) bool {
	if c == nil || c.parsed == nil {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.parsed.Check(v)
}

// MaxSatisfying returns the largest candidate that satisfies the constraint.
// Used by fake package sources in tests and by collaborators that enumerate
// available versions. Returns ErrUnsatisfiable when nothing matches.
func (c *Constraint) MaxSatisfying(candidates []string) (string, error) {
	var best *semver.Version
	var bestRaw string

	for _, raw := range candidates {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if c != nil && c.parsed != nil && !c.parsed.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = raw
		}
	}

	if best == nil {
		return "", fmt.Errorf("%w: %q against %d candidates", ErrUnsatisfiable, c.String(), len(candidates))
	}
	return bestRaw, nil
}
