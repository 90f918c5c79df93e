// Package export publishes committed builds. The on-disk format is the OCI
// image layout: a blobs/sha256 tree holding the layer tars, the image
// config, and the manifest, with index.json pointing at the manifest. The
// layout can be tarred up and handed to a container daemon.
package export

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/imgforge/imgforge/internal/layer"
	"github.com/imgforge/imgforge/internal/logs"
	"github.com/imgforge/imgforge/internal/pipeline"
)

// LayoutWriter writes images as OCI image layouts under Dir. Blob content is
// fully deterministic: no timestamps enter the config or manifest, so the
// same build produces the same layout byte for byte.
type LayoutWriter struct {
	Store *layer.Store

	// Dir is the layout root. Created if missing, replaced if present.
	Dir string

	// Tag is recorded as the image's reference name in index.json.
	Tag string
}

func (w *LayoutWriter) Export(ctx context.Context, img *pipeline.Image) error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("export: reset layout: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(w.Dir, "blobs", "sha256"), 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	layers := make([]ocispec.Descriptor, 0, len(img.Layers))
	diffIDs := make([]digest.Digest, 0, len(img.Layers))
	for _, ref := range img.Layers {
		if err := w.copyLayerBlob(ref); err != nil {
			return err
		}
		layers = append(layers, ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageLayer,
			Digest:    ref.Digest,
			Size:      ref.Size,
		})
		// Layer blobs are stored uncompressed, so the blob digest is the
		// diff ID.
		diffIDs = append(diffIDs, ref.Digest)
	}

	config := ocispec.Image{
		Platform: ocispec.Platform{
			Architecture: runtime.GOARCH,
			OS:           "linux",
		},
		Config: ocispec.ImageConfig{
			Env:        img.Env,
			Entrypoint: img.Entrypoint,
			WorkingDir: img.WorkDir,
		},
		RootFS: ocispec.RootFS{
			Type:    "layers",
			DiffIDs: diffIDs,
		},
	}
	configDesc, err := w.writeJSONBlob(config, ocispec.MediaTypeImageConfig)
	if err != nil {
		return err
	}

	manifest := ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    configDesc,
		Layers:    layers,
	}
	manifestDesc, err := w.writeJSONBlob(manifest, ocispec.MediaTypeImageManifest)
	if err != nil {
		return err
	}
	if w.Tag != "" {
		manifestDesc.Annotations = map[string]string{
			ocispec.AnnotationRefName: w.Tag,
		}
	}

	index := ocispec.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: []ocispec.Descriptor{manifestDesc},
	}
	if err := w.writeFile("index.json", index); err != nil {
		return err
	}
	if err := w.writeFile(ocispec.ImageLayoutFile, ocispec.ImageLayout{
		Version: ocispec.ImageLayoutVersion,
	}); err != nil {
		return err
	}

	logs.Infof("exported image layout to %s (%d layers)", w.Dir, len(layers))
	return nil
}

func (w *LayoutWriter) copyLayerBlob(ref layer.Ref) error {
	src, err := w.Store.OpenBlob(ref.Digest)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(w.blobPath(ref.Digest))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("export: copy layer %s: %w", ref.Digest, err)
	}
	return dst.Close()
}

func (w *LayoutWriter) writeJSONBlob(v any, mediaType string) (ocispec.Descriptor, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("export: marshal %s: %w", mediaType, err)
	}

	d := digest.FromBytes(data)
	if err := os.WriteFile(w.blobPath(d), data, 0o644); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("export: %w", err)
	}

	return ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    d,
		Size:      int64(len(data)),
	}, nil
}

func (w *LayoutWriter) writeFile(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("export: marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(w.Dir, name), data, 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func (w *LayoutWriter) blobPath(d digest.Digest) string {
	return filepath.Join(w.Dir, "blobs", d.Algorithm().String(), d.Encoded())
}

// TarLayout streams the layout directory as an uncompressed tar, the shape
// `docker load` accepts for OCI layouts. Entries are emitted in walk order
// with zeroed timestamps.
func TarLayout(dir string, out io.Writer) error {
	tw := tar.NewWriter(out)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Name:     rel + "/",
				Typeflag: tar.TypeDir,
				Mode:     0o755,
			})
		}

		if err := tw.WriteHeader(&tar.Header{
			Name:     rel,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     info.Size(),
		}); err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("export: tar layout: %w", err)
	}

	return tw.Close()
}
