// Package pipeline executes staged image builds. A Plan is an ordered list
// of stages, each an ordered list of steps; every step declares a
// deterministic identity, and the executor reuses cached layers whenever a
// (step identity, parent) pair has been built before. Auxiliary stages are
// disposable: only what a later stage transplants out of them reaches the
// committed image.
package pipeline

import (
	"context"

	"github.com/opencontainers/go-digest"

	"github.com/imgforge/imgforge/internal/envset"
	"github.com/imgforge/imgforge/internal/imageref"
	"github.com/imgforge/imgforge/internal/layer"
)

// Step is one unit of build work inside a stage.
type Step interface {
	Name() string

	// Target is the build phase the step completes.
	Target() Phase

	// Layered reports whether the step mutates the stage filesystem and so
	// produces a cached layer. Metadata-only steps still chain their
	// identity into subsequent cache keys, without a blob.
	Layered() bool

	// Identity returns the deterministic lines hashed into the step's
	// cache key. Identity must capture every input that changes the step's
	// outcome; anything left out produces stale cache hits.
	Identity(ctx context.Context, st *Stage) ([]string, error)

	// Record applies the step's metadata effects (environment declarations,
	// image config). Runs on cache hits and misses alike, before any
	// filesystem work.
	Record(st *Stage) error

	// Execute performs the step's filesystem work against st.Rootfs.
	// Skipped when the layer store already holds the step's result.
	Execute(ctx context.Context, st *Stage) error
}

// Stage is one build stage: a mutable root filesystem plus the metadata the
// steps accumulate while transforming it.
type Stage struct {
	Name  string
	Steps []Step

	// Rootfs is the stage's working root filesystem, assigned by the
	// executor.
	Rootfs string

	// Env is the stage's cumulative environment variable set.
	Env *envset.Set

	// Base is the resolved base image, set by the stage's base step.
	Base *imageref.Resolved

	// Head chains the identities of every step run so far. It seeds the
	// next step's cache key, so two stages share a layer only when their
	// entire histories match.
	Head digest.Digest

	// Layers lists the stage's cached layers in application order.
	Layers []layer.Ref

	// Committed is set once every step has run. Transplant sources must be
	// committed before they are read.
	Committed bool

	// Prefix is the active interpreter environment's in-image path.
	Prefix string

	// WorkDir and Entrypoint feed the committed image config.
	WorkDir    string
	Entrypoint []string
}

// EnvVar is one ordered environment variable declaration.
type EnvVar struct {
	Key   string
	Value string
}
