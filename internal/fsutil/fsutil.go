// Package fsutil implements filesystem tree operations over afero so the
// build steps can be tested against in-memory filesystems.
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// CopyTree copies the subtree rooted at src into dst, preserving file modes
// and symlinks. Links are recreated verbatim, never followed: a dangling or
// out-of-tree link in the source stays a dangling or out-of-tree link in the
// copy. Files matched by matcher (relative to src, may be nil) are skipped.
// Existing files at the destination are overwritten.
func CopyTree(fsys afero.Fs, src, dst string, matcher *ignore.GitIgnore) error {
	info, err := lstat(fsys, src)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return copySymlink(fsys, src, dst)
	}
	if !info.IsDir() {
		return copyFile(fsys, src, dst, info.Mode())
	}

	return afero.Walk(fsys, src, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(p, src), "/")
		if rel != "" && matcher != nil && matcher.MatchesPath(rel) {
			if fi.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		target := path.Join(dst, rel)
		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			return copySymlink(fsys, p, target)
		case fi.IsDir():
			return fsys.MkdirAll(target, fi.Mode().Perm())
		default:
			return copyFile(fsys, p, target, fi.Mode())
		}
	})
}

// CopyTreeAtomic copies src into dst without ever exposing a partial tree at
// dst: the copy lands in a temporary sibling directory first and is renamed
// into place only once complete. Any existing dst is replaced.
func CopyTreeAtomic(fsys afero.Fs, src, dst string, matcher *ignore.GitIgnore) error {
	tmp := dst + ".partial"
	if err := fsys.RemoveAll(tmp); err != nil {
		return err
	}

	if err := CopyTree(fsys, src, tmp, matcher); err != nil {
		_ = fsys.RemoveAll(tmp)
		return err
	}

	if err := fsys.RemoveAll(dst); err != nil {
		_ = fsys.RemoveAll(tmp)
		return err
	}
	if err := fsys.Rename(tmp, dst); err != nil {
		_ = fsys.RemoveAll(tmp)
		return err
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string, mode os.FileMode) error {
	if err := fsys.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	// MemMapFs creates files with the requested mode, but an existing file
	// keeps its old one; chmod covers the overwrite path.
	return fsys.Chmod(dst, mode.Perm())
}

// copySymlink recreates the link at src as a link at dst with the same
// target. The target is copied as-is, without resolution or existence
// checks.
func copySymlink(fsys afero.Fs, src, dst string) error {
	lr, ok := fsys.(afero.LinkReader)
	if !ok {
		return &os.PathError{Op: "readlink", Path: src, Err: afero.ErrNoReadlink}
	}
	target, err := lr.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}

	ln, ok := fsys.(afero.Linker)
	if !ok {
		return &os.PathError{Op: "symlink", Path: dst, Err: afero.ErrNoSymlink}
	}
	if err := fsys.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := fsys.RemoveAll(dst); err != nil {
		return err
	}
	return ln.SymlinkIfPossible(target, dst)
}

// lstat stats without following a trailing symlink where the filesystem
// supports it.
func lstat(fsys afero.Fs, p string) (os.FileInfo, error) {
	if ls, ok := fsys.(afero.Lstater); ok {
		fi, _, err := ls.LstatIfPossible(p)
		return fi, err
	}
	return fsys.Stat(p)
}

// TreeIdentityLines returns one deterministic "path mode sha256" line per
// file under root, sorted by path. Used as cache-key material for steps that
// copy host trees into the image.
func TreeIdentityLines(fsys afero.Fs, root string, matcher *ignore.GitIgnore) ([]string, error) {
	var lines []string

	err := afero.Walk(fsys, root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}

		// A symlink's identity is its target, never the pointed-to content:
		// dangling links are legal tree members.
		if fi.Mode()&os.ModeSymlink != 0 {
			if lr, ok := fsys.(afero.LinkReader); ok {
				target, err := lr.ReadlinkIfPossible(p)
				if err != nil {
					return err
				}
				lines = append(lines, fmt.Sprintf("%s link %s", rel, target))
				return nil
			}
		}

		sum, err := hashFile(fsys, p)
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("%s %04o %s", rel, fi.Mode().Perm(), sum))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(lines)
	return lines, nil
}

func hashFile(fsys afero.Fs, p string) (string, error) {
	f, err := fsys.Open(p)
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
