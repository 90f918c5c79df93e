// Package collab defines the pipeline's external collaborators: the runtime
// distribution installer and the package managers. The pipeline only ever
// talks to these interfaces; exec-backed implementations live alongside and
// tests substitute mocks to simulate unavailable/unsatisfiable outcomes
// without network access.
package collab

import (
	"context"
	"errors"

	"github.com/imgforge/imgforge/internal/manifest"
)

var (
	// ErrUnavailable means the requested runtime version does not exist
	// for the base's architecture/OS combination.
	ErrUnavailable = errors.New("runtime version unavailable")

	// ErrUnsatisfiable means a package name or version constraint cannot
	// be satisfied against the configured package sources.
	ErrUnsatisfiable = errors.New("package unsatisfiable")
)

// Environment is a provisioned, isolated interpreter environment inside a
// stage's root filesystem. Prefix is image-absolute (e.g.
// "/opt/conda/envs/app"); Rootfs locates the stage on the host.
type Environment struct {
	Rootfs string
	Prefix string
}

// BinDir returns the image-absolute executable directory of the environment.
func (e Environment) BinDir() string {
	return e.Prefix + "/bin"
}

// RuntimeInstaller provisions a named environment with a pinned interpreter
// version, independent of any system interpreter.
//
// Contract: create_environment(name, version) -> environment path |
// unavailable (ErrUnavailable).
type RuntimeInstaller interface {
	CreateEnvironment(ctx context.Context, rootfs, envName, version string) (Environment, error)
}

// SystemPackageManager drives the base image's native package manager.
//
// Contract: install(name) -> success | unsatisfiable (ErrUnsatisfiable).
// RefreshIndex must run immediately before Install within the same layer;
// the index is deliberately not part of any cache key.
type SystemPackageManager interface {
	RefreshIndex(ctx context.Context, rootfs string) error
	Install(ctx context.Context, rootfs string, packages []string) error
	CleanCaches(ctx context.Context, rootfs string) error
}

// DependencyInstaller installs manifest entries into a provisioned
// environment with local package caches disabled.
//
// Contract: install(name, constraint) -> success | unsatisfiable
// (ErrUnsatisfiable).
type DependencyInstaller interface {
	Install(ctx context.Context, env Environment, entries []manifest.Entry) error
}
