package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/imgforge/imgforge/internal/collab"
)

// ProvisionStep creates the named, pinned-interpreter environment in the
// stage rootfs through the runtime installer collaborator.
type ProvisionStep struct {
	Installer    collab.RuntimeInstaller
	Distribution string
	Version      string
	EnvName      string
}

func (s *ProvisionStep) Name() string  { return "provision" }
func (s *ProvisionStep) Target() Phase { return PhaseProvisioned }
func (s *ProvisionStep) Layered() bool { return true }

func (s *ProvisionStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	return []string{
		fmt.Sprintf("RUN provision %s env=%s python=%s", s.Distribution, s.EnvName, s.Version),
	}, nil
}

func (s *ProvisionStep) Record(st *Stage) error {
	st.Prefix = collab.EnvsDir + "/" + s.EnvName
	return nil
}

func (s *ProvisionStep) Execute(ctx context.Context, st *Stage) error {
	env, err := s.Installer.CreateEnvironment(ctx, st.Rootfs, s.EnvName, s.Version)
	if err != nil {
		if errors.Is(err, collab.ErrUnavailable) {
			return fmt.Errorf("%w: interpreter %s: %v", ErrProvisioning, s.Version, err)
		}
		return fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	st.Prefix = env.Prefix
	return nil
}
