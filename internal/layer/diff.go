package layer

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// whiteoutPrefix marks a deleted path inside a layer tar, OCI-style:
// "dir/.wh.name" deletes "dir/name" when the layer is applied.
const whiteoutPrefix = ".wh."

// WriteDiff writes the layer tar that transforms parent into current.
// Changed and added paths are emitted with their content from root; paths
// present only in parent become whiteout entries. Entries are sorted and
// headers carry no timestamps, so identical diffs are byte-identical.
func WriteDiff(w io.Writer, root string, parent, current Manifest) error {
	tw := tar.NewWriter(w)

	var upserts []string
	for p, meta := range current {
		if old, ok := parent[p]; ok && old == meta {
			continue
		}
		upserts = append(upserts, p)
	}
	sort.Strings(upserts)

	var deletions []string
	for p := range parent {
		if _, ok := current[p]; !ok {
			deletions = append(deletions, p)
		}
	}
	sort.Strings(deletions)

	for _, p := range upserts {
		if err := writeEntry(tw, root, p, current[p]); err != nil {
			return fmt.Errorf("layer entry %s: %w", p, err)
		}
	}

	for _, p := range deletions {
		// A whiteout under a deleted directory is redundant; the directory
		// whiteout covers it.
		if coveredByDeletedDir(p, parent, current) {
			continue
		}
		hdr := &tar.Header{
			Name:     path.Join(path.Dir(p), whiteoutPrefix+path.Base(p)),
			Typeflag: tar.TypeReg,
			Mode:     0o600,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("whiteout %s: %w", p, err)
		}
	}

	return tw.Close()
}

func coveredByDeletedDir(p string, parent, current Manifest) bool {
	dir := path.Dir(p)
	for dir != "." && dir != "/" {
		if _, inParent := parent[dir]; inParent {
			if _, inCurrent := current[dir]; !inCurrent {
				return true
			}
		}
		dir = path.Dir(dir)
	}
	return false
}

func writeEntry(tw *tar.Writer, root, rel string, meta FileMeta) error {
	hdr := &tar.Header{
		Name: rel,
		Mode: int64(meta.Mode.Perm()),
	}

	switch {
	case meta.Mode.IsDir():
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		return tw.WriteHeader(hdr)

	case meta.Link != "":
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = meta.Link
		return tw.WriteHeader(hdr)

	default:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = meta.Size
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		return nil
	}
}
