package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/imgforge/imgforge/internal/fsutil"
)

// TransplantStep deep-copies one subtree out of a committed source stage
// into the current stage. The copy is all-or-nothing: it lands in a
// temporary sibling and is renamed into place only once complete, so a
// failure never leaves a partial destination.
type TransplantStep struct {
	Source *Stage
	// Path is the subtree to transplant, absolute within both stages.
	Path string
}

func (s *TransplantStep) Name() string  { return "transplant" }
func (s *TransplantStep) Target() Phase { return PhaseTransplanted }
func (s *TransplantStep) Layered() bool { return true }

func (s *TransplantStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	if !s.Source.Committed {
		return nil, fmt.Errorf("%w: source stage %s is not committed", ErrTransplant, s.Source.Name)
	}
	// The source head chains the full history that produced the subtree,
	// so a changed provision invalidates the transplant layer.
	return []string{
		fmt.Sprintf("COPY --from=%s %s src=%s", s.Source.Name, s.Path, s.Source.Head),
	}, nil
}

func (s *TransplantStep) Record(st *Stage) error {
	if st.Prefix == "" {
		st.Prefix = s.Path
	}
	return nil
}

func (s *TransplantStep) Execute(ctx context.Context, st *Stage) error {
	src := filepath.Join(s.Source.Rootfs, filepath.FromSlash(s.Path))
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: source path %s: %v", ErrTransplant, s.Path, err)
	}

	dst := filepath.Join(st.Rootfs, filepath.FromSlash(s.Path))
	if err := fsutil.CopyTreeAtomic(afero.NewOsFs(), src, dst, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrTransplant, err)
	}
	return nil
}
