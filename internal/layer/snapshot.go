// Package layer implements immutable filesystem diffs and the
// content-addressed arena that caches them. A stage's visible filesystem is
// its base plus its layers applied in declaration order; identical
// (step identity, parent digest) pairs reuse the cached layer without
// re-execution.
package layer

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileMeta describes one path inside a snapshot manifest.
type FileMeta struct {
	Mode fs.FileMode
	Size int64
	// Sum is the hex SHA-256 of file content; empty for directories.
	Sum string
	// Link is the symlink target; empty for regular files and directories.
	Link string
}

// Manifest maps slash-separated relative paths to their metadata. Two
// snapshots are equal iff their manifests are equal.
type Manifest map[string]FileMeta

// Snapshot walks root and records every path below it.
func Snapshot(root string) (Manifest, error) {
	m := Manifest{}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			m[rel] = FileMeta{Mode: info.Mode()}
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			m[rel] = FileMeta{Mode: info.Mode(), Link: target}
		default:
			sum, err := hashPath(p)
			if err != nil {
				return err
			}
			m[rel] = FileMeta{Mode: info.Mode(), Size: info.Size(), Sum: sum}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Clone returns an independent copy of the manifest.
func (m Manifest) Clone() Manifest {
	cp := make(Manifest, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Paths returns the manifest's paths in sorted order.
func (m Manifest) Paths() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func hashPath(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
