package collab

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/imgforge/imgforge/internal/manifest"
)

// PipInstaller installs manifest entries with the provisioned environment's
// own pip, so packages land inside the environment and never touch a system
// interpreter.
type PipInstaller struct{}

func NewPipInstaller() *PipInstaller {
	return &PipInstaller{}
}

func (p *PipInstaller) Install(ctx context.Context, env Environment, entries []manifest.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pip := filepath.Join(env.Rootfs, filepath.FromSlash(env.BinDir()), "pip")

	// One invocation for the whole manifest: pip resolves the set together
	// and a single unsatisfiable entry fails the lot, which is exactly the
	// all-or-nothing behavior the pipeline wants.
	args := []string{"install", "--no-cache-dir"}
	for _, e := range entries {
		args = append(args, e.Raw)
	}

	out, err := runCommand(ctx, pip, args...)
	if err = classify(err, out, []string{
		"No matching distribution found",
		"Could not find a version that satisfies",
	}, ErrUnsatisfiable); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}
	return nil
}
