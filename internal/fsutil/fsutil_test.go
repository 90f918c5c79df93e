package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCopyTree(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/main.py", "print('hi')")
	writeFile(t, fsys, "/src/pkg/util.py", "pass")

	if err := CopyTree(fsys, "/src", "/dst", nil); err != nil {
		t.Fatalf("CopyTree returned error: %v", err)
	}

	got, err := afero.ReadFile(fsys, "/dst/pkg/util.py")
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "pass" {
		t.Fatalf("copied content = %q", got)
	}
}

func TestCopyTreeIgnores(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/main.py", "x")
	writeFile(t, fsys, "/src/__pycache__/main.cpython-312.pyc", "junk")

	matcher := ignore.CompileIgnoreLines("__pycache__/")
	if err := CopyTree(fsys, "/src", "/dst", matcher); err != nil {
		t.Fatalf("CopyTree returned error: %v", err)
	}

	if _, err := fsys.Stat("/dst/__pycache__/main.cpython-312.pyc"); err == nil {
		t.Fatal("ignored file was copied")
	}
	if _, err := fsys.Stat("/dst/main.py"); err != nil {
		t.Fatalf("expected file missing: %v", err)
	}
}

func TestCopyTreeAtomicReplacesDestination(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/a", "new")
	writeFile(t, fsys, "/dst/stale", "old")

	if err := CopyTreeAtomic(fsys, "/src", "/dst", nil); err != nil {
		t.Fatalf("CopyTreeAtomic returned error: %v", err)
	}

	if _, err := fsys.Stat("/dst/stale"); err == nil {
		t.Fatal("stale destination content survived")
	}
	if _, err := fsys.Stat("/dst/a"); err != nil {
		t.Fatalf("expected file missing: %v", err)
	}
	if _, err := fsys.Stat("/dst.partial"); err == nil {
		t.Fatal("temporary directory left behind")
	}
}

// newLinkedTree lays out a conda-style bin dir: a regular interpreter, a
// relative symlink to it, and a dangling symlink into a lib dir that does
// not exist. Symlink trees need the real filesystem; MemMapFs has no links.
func newLinkedTree(t *testing.T) string {
	t.Helper()

	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "bin/python3.12"), []byte("#!interpreter"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("python3.12", filepath.Join(src, "bin/python")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../lib/libmissing.so.1", filepath.Join(src, "bin/dangling")); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestCopyTreeAtomicPreservesSymlinks(t *testing.T) {
	t.Parallel()

	fsys := afero.NewOsFs()
	src := newLinkedTree(t)
	dst := filepath.Join(t.TempDir(), "env")

	if err := CopyTreeAtomic(fsys, src, dst, nil); err != nil {
		t.Fatalf("CopyTreeAtomic returned error: %v", err)
	}

	fi, err := os.Lstat(filepath.Join(dst, "bin/python"))
	if err != nil {
		t.Fatalf("lstat copied link: %v", err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Fatal("bin/python was flattened to a regular file")
	}
	if target, _ := os.Readlink(filepath.Join(dst, "bin/python")); target != "python3.12" {
		t.Errorf("bin/python target = %q, want python3.12", target)
	}

	// The dangling link must survive verbatim, not abort the copy.
	if target, err := os.Readlink(filepath.Join(dst, "bin/dangling")); err != nil || target != "../lib/libmissing.so.1" {
		t.Errorf("bin/dangling target = %q (err %v), want ../lib/libmissing.so.1", target, err)
	}
}

func TestTreeIdentityLinesIncludesSymlinkTargets(t *testing.T) {
	t.Parallel()

	fsys := afero.NewOsFs()
	src := newLinkedTree(t)

	lines, err := TreeIdentityLines(fsys, src, nil)
	if err != nil {
		t.Fatalf("TreeIdentityLines returned error: %v", err)
	}

	var found bool
	for _, line := range lines {
		if line == "bin/python link python3.12" {
			found = true
		}
		if strings.Contains(line, "libmissing") && !strings.Contains(line, "link") {
			t.Errorf("dangling symlink hashed as content: %q", line)
		}
	}
	if !found {
		t.Fatalf("no identity line for bin/python symlink: %v", lines)
	}
}

func TestCopyTreeAtomicMissingSourceLeavesNothing(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	if err := CopyTreeAtomic(fsys, "/does-not-exist", "/dst", nil); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := fsys.Stat("/dst"); err == nil {
		t.Fatal("destination created despite failed copy")
	}
}

func TestTreeIdentityLinesDeterministic(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/src/b.py", "b")
	writeFile(t, fsys, "/src/a.py", "a")

	first, err := TreeIdentityLines(fsys, "/src", nil)
	if err != nil {
		t.Fatalf("TreeIdentityLines returned error: %v", err)
	}
	second, err := TreeIdentityLines(fsys, "/src", nil)
	if err != nil {
		t.Fatalf("TreeIdentityLines returned error: %v", err)
	}

	if len(first) != 2 || first[0] >= first[1] {
		t.Fatalf("lines not sorted: %v", first)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("identity not deterministic: %q vs %q", first[i], second[i])
		}
	}
}
