package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/imgforge/imgforge/internal/collab"
	"github.com/imgforge/imgforge/internal/manifest"
)

// ManifestCopyStep copies the dependency manifest into the image in its own
// layer, ahead of the application tree. Its identity is the manifest
// content, so editing application code never invalidates the dependency
// layers below it.
type ManifestCopyStep struct {
	HostPath string
	Dest     string
}

func (s *ManifestCopyStep) Name() string  { return "manifest" }
func (s *ManifestCopyStep) Target() Phase { return PhaseSystemDepsInstalled }
func (s *ManifestCopyStep) Layered() bool { return true }

func (s *ManifestCopyStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	m, err := manifest.Load(afero.NewOsFs(), s.HostPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyResolution, err)
	}
	return append([]string{"COPY manifest " + s.Dest}, m.Lines()...), nil
}

func (s *ManifestCopyStep) Record(st *Stage) error { return nil }

func (s *ManifestCopyStep) Execute(ctx context.Context, st *Stage) error {
	data, err := os.ReadFile(s.HostPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStaging, err)
	}

	dst := filepath.Join(st.Rootfs, filepath.FromSlash(s.Dest))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStaging, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStaging, err)
	}
	return nil
}

// DepsStep installs every manifest entry into the active interpreter
// environment. The collaborator receives the whole set in one invocation, so
// a single unsatisfiable entry fails the step before any layer is committed.
type DepsStep struct {
	Installer collab.DependencyInstaller
	HostPath  string
}

func (s *DepsStep) Name() string  { return "pydeps" }
func (s *DepsStep) Target() Phase { return PhaseDepsInstalled }
func (s *DepsStep) Layered() bool { return true }

func (s *DepsStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	m, err := manifest.Load(afero.NewOsFs(), s.HostPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyResolution, err)
	}
	return append([]string{"RUN pip install env=" + st.Prefix}, m.Lines()...), nil
}

func (s *DepsStep) Record(st *Stage) error { return nil }

func (s *DepsStep) Execute(ctx context.Context, st *Stage) error {
	m, err := manifest.Load(afero.NewOsFs(), s.HostPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyResolution, err)
	}
	if m.Len() == 0 {
		return nil
	}

	env := collab.Environment{Rootfs: st.Rootfs, Prefix: st.Prefix}
	if err := s.Installer.Install(ctx, env, m.Entries); err != nil {
		if errors.Is(err, collab.ErrUnsatisfiable) {
			return fmt.Errorf("%w: %v", ErrDependencyResolution, err)
		}
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}
	return nil
}
