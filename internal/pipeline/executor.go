package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/imgforge/imgforge/internal/envset"
	"github.com/imgforge/imgforge/internal/layer"
	"github.com/imgforge/imgforge/internal/logs"
)

// Image is the committed build product handed to the exporter: the final
// stage's layers in order plus the image config metadata.
type Image struct {
	Layers     []layer.Ref
	Env        []string
	Entrypoint []string
	WorkDir    string
}

// Exporter publishes a committed image.
type Exporter interface {
	Export(ctx context.Context, img *Image) error
}

// Executor runs plans against a layer store. WorkDir is per-build scratch
// space holding each stage's root filesystem.
type Executor struct {
	Store    *layer.Store
	Exporter Exporter
	WorkDir  string
}

// Build is one execution of a plan. It tracks the build's phase so failures
// can be reported with their lifecycle position.
type Build struct {
	exec *Executor
	plan *Plan

	mu      sync.Mutex
	phase   Phase
	history []Phase

	image *Image
}

func (e *Executor) NewBuild(plan *Plan) *Build {
	return &Build{exec: e, plan: plan, phase: PhaseInit, history: []Phase{PhaseInit}}
}

// Run executes the plan. Auxiliary stages run concurrently with the final
// stage's base resolution; the rest of the final stage is sequential. The
// first error aborts the build, and a nil Exporter commits without
// publishing.
func (b *Build) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			b.observe(PhaseAborted)
		}
	}()

	stages := b.plan.Stages
	if len(stages) == 0 {
		return errors.New("empty plan")
	}
	final := stages[len(stages)-1]

	if err := b.prepareStage(final); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, aux := range stages[:len(stages)-1] {
		g.Go(func() error {
			return b.runStage(gctx, aux)
		})
	}
	if len(final.Steps) > 0 {
		g.Go(func() error {
			return b.runSteps(gctx, final, final.Steps[:1])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := b.runSteps(ctx, final, final.Steps[1:]); err != nil {
		return err
	}
	final.Committed = true

	img := &Image{
		Layers:     final.Layers,
		Env:        final.Env.Environ(),
		Entrypoint: final.Entrypoint,
		WorkDir:    final.WorkDir,
	}
	if b.exec.Exporter != nil {
		if err := b.exec.Exporter.Export(ctx, img); err != nil {
			return fmt.Errorf("commit image: %w", err)
		}
	}
	b.image = img
	b.observe(PhaseCommitted)

	logs.Infof("build committed: %d layers", len(img.Layers))
	return nil
}

// Phase returns the build's current phase.
func (b *Build) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// History returns the phases the build has passed through, in order.
func (b *Build) History() []Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Phase, len(b.history))
	copy(out, b.history)
	return out
}

// Image returns the committed image, or nil before commit.
func (b *Build) Image() *Image {
	return b.image
}

func (b *Build) prepareStage(st *Stage) error {
	if st.Env == nil {
		st.Env = envset.New()
	}
	st.Rootfs = filepath.Join(b.exec.WorkDir, st.Name)
	if err := os.RemoveAll(st.Rootfs); err != nil {
		return fmt.Errorf("stage %s: reset rootfs: %w", st.Name, err)
	}
	if err := os.MkdirAll(st.Rootfs, 0o755); err != nil {
		return fmt.Errorf("stage %s: rootfs: %w", st.Name, err)
	}
	return nil
}

func (b *Build) runStage(ctx context.Context, st *Stage) error {
	if err := b.prepareStage(st); err != nil {
		return err
	}
	if err := b.runSteps(ctx, st, st.Steps); err != nil {
		return err
	}
	st.Committed = true
	return nil
}

func (b *Build) runSteps(ctx context.Context, st *Stage, steps []Step) error {
	for _, step := range steps {
		if err := b.runStep(ctx, st, step); err != nil {
			return fmt.Errorf("stage %s: %s: %w", st.Name, step.Name(), err)
		}
	}
	return nil
}

// runStep computes the step's cache key, records its metadata, then either
// replays the cached layer or executes the step and snapshots the resulting
// filesystem diff into the store.
func (b *Build) runStep(ctx context.Context, st *Stage, step Step) error {
	lines, err := step.Identity(ctx, st)
	if err != nil {
		return err
	}
	key := layer.Key(st.Head, append([]string{step.Name()}, lines...))

	if err := step.Record(st); err != nil {
		return err
	}

	if !step.Layered() {
		st.Head = chainHead(key)
		b.observe(step.Target())
		return nil
	}

	ref, ok, err := b.exec.Store.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		logs.Debugf("stage %s: %s: cache hit %s", st.Name, step.Name(), ref.Digest)
		if err := b.exec.Store.Apply(st.Rootfs, ref.Digest); err != nil {
			return err
		}
		st.Layers = append(st.Layers, *ref)
		st.Head = chainHead(key)
		b.observe(step.Target())
		return nil
	}

	logs.Infof("stage %s: %s", st.Name, step.Name())
	parent, err := layer.Snapshot(st.Rootfs)
	if err != nil {
		return err
	}
	if err := step.Execute(ctx, st); err != nil {
		return err
	}
	current, err := layer.Snapshot(st.Rootfs)
	if err != nil {
		return err
	}

	nref, err := b.exec.Store.Populate(ctx, key, st.Head, func(w io.Writer) error {
		return layer.WriteDiff(w, st.Rootfs, parent, current)
	})
	if err != nil {
		return err
	}
	st.Layers = append(st.Layers, *nref)
	st.Head = chainHead(key)
	b.observe(step.Target())
	return nil
}

// observe advances the build's phase. Phases are monotonic: concurrent
// stages may report out of order, so only forward movement is recorded.
func (b *Build) observe(p Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p == PhaseAborted {
		b.phase = PhaseAborted
		b.history = append(b.history, p)
		return
	}
	if p > b.phase {
		b.phase = p
		b.history = append(b.history, p)
	}
}

// chainHead folds a cache key into the digest that seeds the next step's
// key. Chaining over keys (not blob digests) keeps histories distinct even
// when two different steps happen to produce identical layer content.
func chainHead(key layer.CacheKey) digest.Digest {
	return digest.NewDigestFromEncoded(digest.Canonical, string(key))
}
