package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/imgforge/imgforge/internal/fsutil"
)

// ignoreFileName lists staging exclusions, gitignore syntax, at the root of
// the application source tree. The file itself is never staged.
const ignoreFileName = ".forgeignore"

// AppStageStep copies the application source tree into the image's working
// directory. Its identity is the content of every staged file, so the layer
// is invalidated exactly when the tree changes.
type AppStageStep struct {
	SrcDir  string
	WorkDir string
}

func (s *AppStageStep) Name() string  { return "appstage" }
func (s *AppStageStep) Target() Phase { return PhaseStaged }
func (s *AppStageStep) Layered() bool { return true }

func (s *AppStageStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	lines, err := fsutil.TreeIdentityLines(afero.NewOsFs(), s.SrcDir, s.matcher())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaging, err)
	}
	return append([]string{"COPY app " + s.WorkDir}, lines...), nil
}

func (s *AppStageStep) Record(st *Stage) error {
	st.WorkDir = s.WorkDir
	return nil
}

func (s *AppStageStep) Execute(ctx context.Context, st *Stage) error {
	dst := filepath.Join(st.Rootfs, filepath.FromSlash(s.WorkDir))
	if err := fsutil.CopyTree(afero.NewOsFs(), s.SrcDir, dst, s.matcher()); err != nil {
		return fmt.Errorf("%w: %v", ErrStaging, err)
	}
	return nil
}

func (s *AppStageStep) matcher() *ignore.GitIgnore {
	lines := []string{ignoreFileName}

	data, err := afero.ReadFile(afero.NewOsFs(), filepath.Join(s.SrcDir, ignoreFileName))
	if err == nil {
		lines = append(lines, strings.Split(string(data), "\n")...)
	}

	return ignore.CompileIgnoreLines(lines...)
}
