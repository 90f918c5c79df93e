package layer

import (
	"archive/tar"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/imgforge/imgforge/internal/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	db, err := state.Open(context.Background(), state.Config{Path: filepath.Join(dir, "index.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := Open(context.Background(), dir, db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func writeTrivialLayer(w io.Writer, content string) error {
	tw := tar.NewWriter(w)
	hdr := &tar.Header{Name: "file", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.WriteString(tw, content); err != nil {
		return err
	}
	return tw.Close()
}

func TestStorePopulateAndLookup(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	key := Key("sha256:base", []string{"step one"})
	ref, err := s.Populate(ctx, key, "sha256:base", func(w io.Writer) error {
		return writeTrivialLayer(w, "payload")
	})
	if err != nil {
		t.Fatalf("Populate returned error: %v", err)
	}
	if ref.Size == 0 {
		t.Fatal("populated layer has zero size")
	}

	got, ok, err := s.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit after Populate")
	}
	if got.Digest != ref.Digest {
		t.Fatalf("Lookup digest = %s, want %s", got.Digest, ref.Digest)
	}
}

func TestStoreMissOnUnknownKey(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, ok, err := s.Lookup(context.Background(), Key("sha256:base", []string{"never ran"}))
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if ok {
		t.Fatal("unexpected hit for unknown key")
	}
}

func TestStorePopulateIdempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	key := Key("sha256:base", []string{"same step"})

	build := func(w io.Writer) error { return writeTrivialLayer(w, "same bytes") }

	first, err := s.Populate(ctx, key, "sha256:base", build)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Populate(ctx, key, "sha256:base", build)
	if err != nil {
		t.Fatal(err)
	}

	if first.Digest != second.Digest {
		t.Fatalf("duplicate population diverged: %s vs %s", first.Digest, second.Digest)
	}
}

func TestStorePopulateFailureLeavesNoBlob(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	key := Key("sha256:base", []string{"failing step"})

	_, err := s.Populate(ctx, key, "sha256:base", func(w io.Writer) error {
		return io.ErrUnexpectedEOF
	})
	if err == nil {
		t.Fatal("expected error from failing writer")
	}

	if _, ok, _ := s.Lookup(ctx, key); ok {
		t.Fatal("failed population left an index entry")
	}
}

func TestStorePurge(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	key := Key("sha256:base", []string{"to purge"})
	if _, err := s.Populate(ctx, key, "sha256:base", func(w io.Writer) error {
		return writeTrivialLayer(w, "x")
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge returned error: %v", err)
	}

	if _, ok, _ := s.Lookup(ctx, key); ok {
		t.Fatal("layer survived purge")
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Count = %d after purge, want 0", n)
	}
}
