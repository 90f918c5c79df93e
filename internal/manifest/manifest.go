// Package manifest reads newline-delimited dependency manifests. The
// manifest is an externally owned, already-resolved input: entries are
// parsed and validated, never re-resolved.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/imgforge/imgforge/internal/versions"
)

// Entry is one declared dependency: a package name plus an optional version
// constraint, e.g. "requests>=2.0".
type Entry struct {
	Name       string
	Constraint *versions.Constraint
	// Raw is the original manifest line, preserved for collaborator
	// invocation and error messages.
	Raw string
}

// Manifest is the ordered list of declared dependencies.
type Manifest struct {
	Entries []Entry
}

var specRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(==|>=|<=|~=|!=|>|<)?\s*(.*)$`)

// Load reads and parses a manifest file.
func Load(fs afero.Fs, path string) (*Manifest, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse reads a manifest from r. Blank lines and "#" comments are skipped.
// Entry order is preserved.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		m.Entries = append(m.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

func parseLine(line string) (Entry, error) {
	groups := specRe.FindStringSubmatch(line)
	if groups == nil {
		return Entry{}, fmt.Errorf("malformed dependency spec %q", line)
	}

	name := groups[1]
	op := groups[2]
	ver := strings.TrimSpace(groups[3])

	if op == "" && ver != "" {
		return Entry{}, fmt.Errorf("malformed dependency spec %q", line)
	}
	if op != "" && ver == "" {
		return Entry{}, fmt.Errorf("constraint without version in %q", line)
	}

	var constraint *versions.Constraint
	if op != "" {
		// "~=" is the compatible-release operator; semver's "~" is the
		// closest equivalent.
		if op == "~=" {
			op = "~"
		}
		c, err := versions.ParseConstraint(op + ver)
		if err != nil {
			return Entry{}, err
		}
		constraint = c
	}

	return Entry{Name: name, Constraint: constraint, Raw: line}, nil
}

// Lines returns the raw entry lines in declaration order. Used for cache
// keys: the dependency layer must be invalidated when (and only when) the
// manifest content changes.
func (m *Manifest) Lines() []string {
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Raw)
	}
	return out
}

func (m *Manifest) Len() int { return len(m.Entries) }
