package pipeline

import (
	"context"
	"errors"
	"strings"
)

// EntrypointStep records the image's default command. Pure metadata: no
// filesystem mutation, no layer.
type EntrypointStep struct {
	Argv []string
}

func (s *EntrypointStep) Name() string  { return "entrypoint" }
func (s *EntrypointStep) Target() Phase { return PhaseEntryPointSet }
func (s *EntrypointStep) Layered() bool { return false }

func (s *EntrypointStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	return []string{"ENTRYPOINT " + strings.Join(s.Argv, " ")}, nil
}

func (s *EntrypointStep) Record(st *Stage) error {
	if len(s.Argv) == 0 {
		return errors.New("entrypoint: empty command")
	}
	st.Entrypoint = append([]string(nil), s.Argv...)
	return nil
}

func (s *EntrypointStep) Execute(ctx context.Context, st *Stage) error { return nil }
