package pipeline

import (
	"context"
	"strings"

	"github.com/spf13/afero"

	"github.com/imgforge/imgforge/internal/fsutil"
	"github.com/imgforge/imgforge/internal/imageref"
)

// BaseStep resolves the stage's base image to a pinned digest and
// materializes its filesystem as the stage's first layer. The base image's
// own environment seeds the stage's variable set.
type BaseStep struct {
	Ref      imageref.Ref
	Resolver imageref.Resolver

	resolved *imageref.Resolved
}

func (s *BaseStep) Name() string  { return "base" }
func (s *BaseStep) Target() Phase { return PhaseBaseResolved }
func (s *BaseStep) Layered() bool { return true }

func (s *BaseStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	if s.resolved == nil {
		r, err := s.Resolver.Resolve(ctx, s.Ref)
		if err != nil {
			return nil, err
		}
		s.resolved = r
	}
	return []string{"FROM " + s.Ref.String() + "@" + s.resolved.Digest.String()}, nil
}

func (s *BaseStep) Record(st *Stage) error {
	st.Base = s.resolved
	for _, kv := range s.resolved.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if err := st.Env.Declare(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *BaseStep) Execute(ctx context.Context, st *Stage) error {
	return fsutil.CopyTree(afero.NewOsFs(), s.resolved.RootFS, st.Rootfs, nil)
}
