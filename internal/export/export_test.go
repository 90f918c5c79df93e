package export

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/imgforge/imgforge/internal/layer"
	"github.com/imgforge/imgforge/internal/pipeline"
	"github.com/imgforge/imgforge/internal/state"
)

func testImage(t *testing.T) (*layer.Store, *pipeline.Image) {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	db, err := state.Open(ctx, state.Config{Path: filepath.Join(dir, "index.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := layer.Open(ctx, dir, db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	var refs []layer.Ref
	for _, name := range []string{"one", "two"} {
		key := layer.Key("", []string{name})
		ref, err := store.Populate(ctx, key, "", func(w io.Writer) error {
			tw := tar.NewWriter(w)
			content := "content of " + name
			if err := tw.WriteHeader(&tar.Header{
				Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content)),
			}); err != nil {
				return err
			}
			if _, err := io.WriteString(tw, content); err != nil {
				return err
			}
			return tw.Close()
		})
		if err != nil {
			t.Fatalf("populate %s: %v", name, err)
		}
		refs = append(refs, *ref)
	}

	return store, &pipeline.Image{
		Layers:     refs,
		Env:        []string{"PATH=/opt/env/bin:/usr/bin"},
		Entrypoint: []string{"python", "main.py"},
		WorkDir:    "/app",
	}
}

func TestLayoutWriterExport(t *testing.T) {
	t.Parallel()

	store, img := testImage(t)
	dir := filepath.Join(t.TempDir(), "layout")
	w := &LayoutWriter{Store: store, Dir: dir, Tag: "myapp:latest"}

	if err := w.Export(context.Background(), img); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	var marker ocispec.ImageLayout
	readJSON(t, filepath.Join(dir, ocispec.ImageLayoutFile), &marker)
	if marker.Version != ocispec.ImageLayoutVersion {
		t.Errorf("layout version = %q, want %q", marker.Version, ocispec.ImageLayoutVersion)
	}

	var index ocispec.Index
	readJSON(t, filepath.Join(dir, "index.json"), &index)
	if len(index.Manifests) != 1 {
		t.Fatalf("index has %d manifests, want 1", len(index.Manifests))
	}
	desc := index.Manifests[0]
	if got := desc.Annotations[ocispec.AnnotationRefName]; got != "myapp:latest" {
		t.Errorf("ref name annotation = %q, want myapp:latest", got)
	}

	var manifest ocispec.Manifest
	readJSON(t, blobPath(dir, desc.Digest.Encoded()), &manifest)
	if len(manifest.Layers) != len(img.Layers) {
		t.Fatalf("manifest has %d layers, want %d", len(manifest.Layers), len(img.Layers))
	}
	for i, l := range manifest.Layers {
		if l.Digest != img.Layers[i].Digest {
			t.Errorf("layer %d digest = %s, want %s", i, l.Digest, img.Layers[i].Digest)
		}
		if _, err := os.Stat(blobPath(dir, l.Digest.Encoded())); err != nil {
			t.Errorf("layer blob %s missing: %v", l.Digest, err)
		}
	}

	var config ocispec.Image
	readJSON(t, blobPath(dir, manifest.Config.Digest.Encoded()), &config)
	if config.Config.WorkingDir != "/app" {
		t.Errorf("WorkingDir = %q, want /app", config.Config.WorkingDir)
	}
	if len(config.Config.Entrypoint) != 2 || config.Config.Entrypoint[0] != "python" {
		t.Errorf("Entrypoint = %v", config.Config.Entrypoint)
	}
	if len(config.RootFS.DiffIDs) != len(img.Layers) {
		t.Fatalf("config has %d diff IDs, want %d", len(config.RootFS.DiffIDs), len(img.Layers))
	}
	for i, id := range config.RootFS.DiffIDs {
		if id != img.Layers[i].Digest {
			t.Errorf("diff ID %d = %s, want %s", i, id, img.Layers[i].Digest)
		}
	}
}

func TestLayoutWriterDeterministic(t *testing.T) {
	t.Parallel()

	store, img := testImage(t)
	w1 := &LayoutWriter{Store: store, Dir: filepath.Join(t.TempDir(), "a"), Tag: "x:1"}
	w2 := &LayoutWriter{Store: store, Dir: filepath.Join(t.TempDir(), "b"), Tag: "x:1"}

	if err := w1.Export(context.Background(), img); err != nil {
		t.Fatal(err)
	}
	if err := w2.Export(context.Background(), img); err != nil {
		t.Fatal(err)
	}

	a, err := os.ReadFile(filepath.Join(w1.Dir, "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(w2.Dir, "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatal("identical exports produced different index.json")
	}
}

func TestTarLayoutRoundTrip(t *testing.T) {
	t.Parallel()

	store, img := testImage(t)
	dir := filepath.Join(t.TempDir(), "layout")
	w := &LayoutWriter{Store: store, Dir: dir, Tag: "x:1"}
	if err := w.Export(context.Background(), img); err != nil {
		t.Fatal(err)
	}

	out, err := os.Create(filepath.Join(t.TempDir(), "layout.tar"))
	if err != nil {
		t.Fatal(err)
	}
	if err := TarLayout(dir, out); err != nil {
		t.Fatalf("TarLayout returned error: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(out.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	names := map[string]bool{}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		names[hdr.Name] = true
	}

	for _, want := range []string{"oci-layout", "index.json"} {
		if !names[want] {
			t.Errorf("tar missing %s", want)
		}
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
}

func blobPath(dir, encoded string) string {
	return filepath.Join(dir, "blobs", "sha256", encoded)
}
