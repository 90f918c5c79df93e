package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/imgforge/imgforge/internal/collab"
)

// SystemStep installs the fixed, ordered OS package list through the package
// manager collaborator. The index refresh always runs in the same layer as
// the install, and package caches are purged before the layer is snapshotted.
// Index freshness is deliberately not part of the identity: a cached layer
// is reused until the package list itself changes.
type SystemStep struct {
	Manager  collab.SystemPackageManager
	Packages []string
}

func (s *SystemStep) Name() string  { return "syspkg" }
func (s *SystemStep) Target() Phase { return PhaseSystemDepsInstalled }
func (s *SystemStep) Layered() bool { return true }

func (s *SystemStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	return []string{"RUN install " + strings.Join(s.Packages, " ")}, nil
}

func (s *SystemStep) Record(st *Stage) error { return nil }

func (s *SystemStep) Execute(ctx context.Context, st *Stage) error {
	if err := s.Manager.RefreshIndex(ctx, st.Rootfs); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}
	if err := s.Manager.Install(ctx, st.Rootfs, s.Packages); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}
	if err := s.Manager.CleanCaches(ctx, st.Rootfs); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}
	return nil
}
