package imageref

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/opencontainers/go-digest"

	"github.com/imgforge/imgforge/internal/fsutil"
	"github.com/imgforge/imgforge/internal/layer"
	"github.com/imgforge/imgforge/internal/logs"
)

// RegistryResolver pulls bases straight from their registry and flattens
// the layers into a cached root filesystem under cacheDir, keyed by digest.
type RegistryResolver struct {
	cacheDir string
}

func NewRegistryResolver(cacheDir string) *RegistryResolver {
	return &RegistryResolver{cacheDir: cacheDir}
}

func (r *RegistryResolver) Resolve(ctx context.Context, ref Ref) (*Resolved, error) {
	nref, err := name.ParseReference(ref.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, ref, err)
	}

	img, err := remote.Image(nref,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, ref, err)
	}

	hash, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, ref, err)
	}
	d := digest.NewDigestFromEncoded(digest.Algorithm(hash.Algorithm), hash.Hex)

	var env []string
	if cfg, err := img.ConfigFile(); err == nil && cfg != nil {
		env = cfg.Config.Env
	}

	rootfs := filepath.Join(r.cacheDir, d.Algorithm().String(), d.Encoded())
	if _, err := os.Stat(rootfs); err == nil {
		logs.Debugf("base %s already materialized at %s", ref, rootfs)
		return &Resolved{Ref: ref, Digest: d, RootFS: rootfs, Env: env}, nil
	}

	// Two builds may race to materialize the same digest; the lock keeps
	// the extraction single-writer, the re-check makes the loser reuse it.
	mu := fsutil.NewFSMutex(rootfs + ".lock")
	if err := mu.Lock(0); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, ref, err)
	}
	defer mu.Unlock()

	if _, err := os.Stat(rootfs); err == nil {
		return &Resolved{Ref: ref, Digest: d, RootFS: rootfs, Env: env}, nil
	}

	if err := r.materialize(img, rootfs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, ref, err)
	}

	logs.Debugf("materialized base %s (%s)", ref, d)
	return &Resolved{Ref: ref, Digest: d, RootFS: rootfs, Env: env}, nil
}

func (r *RegistryResolver) materialize(img v1.Image, rootfs string) error {
	tmp := rootfs + ".partial"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return err
	}

	layers, err := img.Layers()
	if err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}

	for _, l := range layers {
		rc, err := l.Uncompressed()
		if err != nil {
			_ = os.RemoveAll(tmp)
			return err
		}
		applyErr := layer.ApplyTar(tmp, rc)
		rc.Close()
		if applyErr != nil {
			_ = os.RemoveAll(tmp)
			return applyErr
		}
	}

	return os.Rename(tmp, rootfs)
}
