package pipeline

import (
	"context"
	"os"
)

// EnvStep declares ordered environment variables into the stage's set.
// Values may reference already-effective variables as ${NAME}; references
// are expanded at declaration time, so "PATH=/x:${PATH}" prepends.
type EnvStep struct {
	Decls []EnvVar
}

func (s *EnvStep) Name() string  { return "env" }
func (s *EnvStep) Target() Phase { return PhaseConfigured }
func (s *EnvStep) Layered() bool { return false }

func (s *EnvStep) Identity(ctx context.Context, st *Stage) ([]string, error) {
	lines := make([]string, 0, len(s.Decls))
	for _, d := range s.Decls {
		lines = append(lines, "ENV "+d.Key+"="+d.Value)
	}
	return lines, nil
}

func (s *EnvStep) Record(st *Stage) error {
	for _, d := range s.Decls {
		expanded := os.Expand(d.Value, func(k string) string {
			v, _ := st.Env.Get(k)
			return v
		})
		if err := st.Env.Declare(d.Key, expanded); err != nil {
			return err
		}
	}
	return nil
}

func (s *EnvStep) Execute(ctx context.Context, st *Stage) error { return nil }
