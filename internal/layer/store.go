package layer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/imgforge/imgforge/internal/state"
)

// Store is the append-only, content-addressed layer arena. Blobs live under
// <dir>/blobs/sha256/<hex>.tar; the cache-key index lives in SQLite.
// Concurrent builds may race to populate the same key; writes are
// content-identical and blob renames are atomic, so duplicates are harmless.
type Store struct {
	dir string
	idx *state.LayerIndex
}

// Ref points at one stored layer blob.
type Ref struct {
	Digest digest.Digest
	Parent digest.Digest
	Size   int64
}

func Open(ctx context.Context, dir string, db *state.DB) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("layer store: dir required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "blobs", "sha256"), 0o755); err != nil {
		return nil, fmt.Errorf("layer store: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("layer store: %w", err)
	}

	idx, err := state.NewLayerIndex(ctx, db)
	if err != nil {
		return nil, err
	}

	return &Store{dir: dir, idx: idx}, nil
}

// Lookup returns the cached layer for key, if the index knows it and the
// blob is still present on disk.
func (s *Store) Lookup(ctx context.Context, key CacheKey) (*Ref, bool, error) {
	rec, ok, err := s.idx.Get(ctx, string(key))
	if err != nil || !ok {
		return nil, false, err
	}

	d, err := digest.Parse(rec.Digest)
	if err != nil {
		return nil, false, nil
	}
	if _, err := os.Stat(s.BlobPath(d)); err != nil {
		// Index entry outlived its blob (manual cleanup, crash). Treat as miss.
		return nil, false, nil
	}

	parent := digest.Digest(rec.Parent)
	return &Ref{Digest: d, Parent: parent, Size: rec.Size}, true, nil
}

// Populate builds a layer blob by calling write, then records it under key.
// The blob is hashed while being written and renamed into its
// content-addressed home only once complete, so a failed write never leaves
// a visible blob.
func (s *Store) Populate(ctx context.Context, key CacheKey, parent digest.Digest, write func(io.Writer) error) (*Ref, error) {
	tmp := filepath.Join(s.dir, "tmp", uuid.NewString()+".tar")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("layer store: temp blob: %w", err)
	}
	defer os.Remove(tmp)

	digester := digest.Canonical.Digester()
	counter := &countingWriter{}
	if err := write(io.MultiWriter(f, digester.Hash(), counter)); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("layer store: close temp blob: %w", err)
	}

	d := digester.Digest()
	if err := os.Rename(tmp, s.BlobPath(d)); err != nil {
		return nil, fmt.Errorf("layer store: commit blob: %w", err)
	}

	rec := &state.LayerRecord{
		CacheKey: string(key),
		Digest:   d.String(),
		Parent:   string(parent),
		Size:     counter.n,
	}
	if err := s.idx.Put(ctx, rec); err != nil {
		return nil, err
	}

	return &Ref{Digest: d, Parent: parent, Size: counter.n}, nil
}

func (s *Store) BlobPath(d digest.Digest) string {
	return filepath.Join(s.dir, "blobs", d.Algorithm().String(), d.Encoded()+".tar")
}

func (s *Store) OpenBlob(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.BlobPath(d))
	if err != nil {
		return nil, fmt.Errorf("layer store: open blob %s: %w", d, err)
	}
	return f, nil
}

// Apply materializes the layer d onto root.
func (s *Store) Apply(root string, d digest.Digest) error {
	blob, err := s.OpenBlob(d)
	if err != nil {
		return err
	}
	defer blob.Close()
	return ApplyTar(root, blob)
}

// Purge removes every blob and index record. Used by `imgforge cache clean`.
func (s *Store) Purge(ctx context.Context) error {
	if err := s.idx.Purge(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, "blobs")); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(s.dir, "blobs", "sha256"), 0o755)
}

// Count reports how many layers are indexed.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.idx.Count(ctx)
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
