// Package envset models the process-wide environment variable set that build
// steps accumulate. Declarations are append-only: a later declaration of the
// same key shadows the earlier one, and there is no deletion primitive.
package envset

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyKey = errors.New("environment variable key is empty")

type declaration struct {
	key   string
	value string
}

// Set is an ordered environment variable set. The zero value is usable.
// Not safe for concurrent use; the pipeline threads one Set through its
// steps in declaration order.
type Set struct {
	decls []declaration
}

func New() *Set {
	return &Set{}
}

// Declare appends a (key, value) pair. Ordering is a correctness property:
// steps after a transplant may declare paths the transplant introduced.
func (s *Set) Declare(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.decls = append(s.decls, declaration{key: key, value: value})
	return nil
}

// Get returns the effective value of key: the latest declaration wins.
func (s *Set) Get(key string) (string, bool) {
	for i := len(s.decls) - 1; i >= 0; i-- {
		if s.decls[i].key == key {
			return s.decls[i].value, true
		}
	}
	return "", false
}

// Environ renders the effective mapping as "key=value" strings, one entry
// per key, ordered by each key's first declaration. Suitable for exec and
// for the exported image config.
func (s *Set) Environ() []string {
	seen := make(map[string]int, len(s.decls))
	order := make([]string, 0, len(s.decls))
	for _, d := range s.decls {
		if _, ok := seen[d.key]; !ok {
			order = append(order, d.key)
		}
		seen[d.key] = len(order) // value unused, presence check only
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		v, _ := s.Get(k)
		out = append(out, k+"="+v)
	}
	return out
}

// IdentityLines returns the full declaration history, one "key=value" line
// per declaration in order. Used for cache keys: two step sequences that
// declared differently must never share a layer, even if the effective
// mapping converged.
func (s *Set) IdentityLines() []string {
	out := make([]string, 0, len(s.decls))
	for _, d := range s.decls {
		out = append(out, d.key+"="+d.value)
	}
	return out
}

// Clone returns an independent copy. Stages fork the parent's set so a
// transplanted stage's declarations never leak back.
func (s *Set) Clone() *Set {
	cp := &Set{decls: make([]declaration, len(s.decls))}
	copy(cp.decls, s.decls)
	return cp
}

func (s *Set) Len() int { return len(s.decls) }

func (s *Set) String() string {
	return fmt.Sprintf("envset[%s]", strings.Join(s.Environ(), " "))
}
