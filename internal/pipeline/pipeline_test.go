package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	"go.uber.org/mock/gomock"

	"github.com/imgforge/imgforge/internal/collab"
	"github.com/imgforge/imgforge/internal/collab/mocks"
	"github.com/imgforge/imgforge/internal/envset"
	"github.com/imgforge/imgforge/internal/imageref"
	"github.com/imgforge/imgforge/internal/layer"
	"github.com/imgforge/imgforge/internal/manifest"
	"github.com/imgforge/imgforge/internal/state"
)

// fakeResolver serves a pre-built rootfs for any reference, pinned to a
// digest derived from the reference string. Stages resolve concurrently, so
// the call counter is atomic.
type fakeResolver struct {
	rootfs string
	calls  atomic.Int32
}

func (r *fakeResolver) Resolve(_ context.Context, ref imageref.Ref) (*imageref.Resolved, error) {
	r.calls.Add(1)
	return &imageref.Resolved{
		Ref:    ref,
		Digest: digest.FromString(ref.String()),
		RootFS: r.rootfs,
		Env:    []string{"PATH=/usr/local/bin:/usr/bin"},
	}, nil
}

func newBaseRootfs(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "etc/os-release"), "ID=ubuntu\nVERSION_ID=22.04\n")
	mustWrite(t, filepath.Join(root, "usr/bin/sh"), "#!fake shell\n")
	return root
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()

	dir := t.TempDir()
	db, err := state.Open(context.Background(), state.Config{Path: filepath.Join(dir, "index.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := layer.Open(context.Background(), dir, db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	return &Executor{Store: store, WorkDir: t.TempDir()}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newAppDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "main.py"), "print('hello')\n")
	return dir
}

func newManifestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requirements.txt")
	mustWrite(t, path, content)
	return path
}

// testCollabs bundles the collaborator mocks for one build. times is how
// often each expensive collaborator call is expected; 0 asserts every step
// came out of the layer cache.
type testCollabs struct {
	resolver *fakeResolver
	runtime  *mocks.MockRuntimeInstaller
	system   *mocks.MockSystemPackageManager
	deps     *mocks.MockDependencyInstaller
}

func workingRuntime(t *testing.T, ctrl *gomock.Controller, times int) *mocks.MockRuntimeInstaller {
	t.Helper()

	// The fake environment mirrors what a conda-style installer really lays
	// down: a versioned interpreter, a relative symlink to it, and a dangling
	// link into a directory that never gets created.
	m := mocks.NewMockRuntimeInstaller(ctrl)
	m.EXPECT().
		CreateEnvironment(gomock.Any(), gomock.Any(), "app", "3.12").
		DoAndReturn(func(_ context.Context, rootfs, name, version string) (collab.Environment, error) {
			bin := filepath.Join(rootfs, "opt/conda/envs", name, "bin")
			if err := os.MkdirAll(bin, 0o755); err != nil {
				return collab.Environment{}, err
			}
			if err := os.WriteFile(filepath.Join(bin, "python"+version), []byte("#!interpreter "+version), 0o755); err != nil {
				return collab.Environment{}, err
			}
			if err := os.Symlink("python"+version, filepath.Join(bin, "python")); err != nil {
				return collab.Environment{}, err
			}
			if err := os.Symlink("../lib/libexpat.so.1", filepath.Join(bin, "libexpat.so.1")); err != nil {
				return collab.Environment{}, err
			}
			return collab.Environment{Rootfs: rootfs, Prefix: "/opt/conda/envs/" + name}, nil
		}).Times(times)
	return m
}

func workingSystem(t *testing.T, ctrl *gomock.Controller, times int) *mocks.MockSystemPackageManager {
	t.Helper()

	m := mocks.NewMockSystemPackageManager(ctrl)
	m.EXPECT().RefreshIndex(gomock.Any(), gomock.Any()).Return(nil).Times(times)
	m.EXPECT().
		Install(gomock.Any(), gomock.Any(), []string{"libgl1"}).
		DoAndReturn(func(_ context.Context, rootfs string, _ []string) error {
			mustWrite(t, filepath.Join(rootfs, "usr/lib/libgl1.so"), "lib")
			return nil
		}).Times(times)
	m.EXPECT().CleanCaches(gomock.Any(), gomock.Any()).Return(nil).Times(times)
	return m
}

func workingDeps(t *testing.T, ctrl *gomock.Controller, times int) *mocks.MockDependencyInstaller {
	t.Helper()

	m := mocks.NewMockDependencyInstaller(ctrl)
	m.EXPECT().
		Install(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, env collab.Environment, entries []manifest.Entry) error {
			for _, e := range entries {
				p := filepath.Join(env.Rootfs, filepath.FromSlash(env.Prefix), "lib/site-packages", e.Name, "__init__.py")
				mustWrite(t, p, "# "+e.Raw)
			}
			return nil
		}).Times(times)
	return m
}

func newTestCollabs(t *testing.T, ctrl *gomock.Controller, resolver *fakeResolver, times int) *testCollabs {
	t.Helper()

	return &testCollabs{
		resolver: resolver,
		runtime:  workingRuntime(t, ctrl, times),
		system:   workingSystem(t, ctrl, times),
		deps:     workingDeps(t, ctrl, times),
	}
}

func (tc *testCollabs) collaborators() Collaborators {
	return Collaborators{
		Resolver: tc.resolver,
		Runtime:  tc.runtime,
		System:   tc.system,
		Deps:     tc.deps,
	}
}

func testRequest(manifestPath, appDir string) Request {
	return Request{
		Base:           imageref.Ref{Repository: "foo", Tag: "22.04"},
		Distribution:   "miniforge",
		RuntimeVersion: "3.12",
		EnvName:        "app",
		SystemPackages: []string{"libgl1"},
		ManifestPath:   manifestPath,
		AppDir:         appDir,
		Entrypoint:     []string{"python", "main.py"},
	}
}

func TestBuildEndToEnd(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := newTestExecutor(t)
	resolver := &fakeResolver{rootfs: newBaseRootfs(t)}
	tc := newTestCollabs(t, ctrl, resolver, 1)

	req := testRequest(newManifestFile(t, "requests>=2.0\n"), newAppDir(t))
	plan := DefaultPlan(req, tc.collaborators())

	b := exec.NewBuild(plan)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := b.Phase(); got != PhaseCommitted {
		t.Fatalf("Phase = %s, want %s", got, PhaseCommitted)
	}

	img := b.Image()
	if img == nil {
		t.Fatal("no image after successful build")
	}
	if img.WorkDir != "/app" {
		t.Errorf("WorkDir = %q, want /app", img.WorkDir)
	}
	if want := []string{"python", "main.py"}; strings.Join(img.Entrypoint, " ") != strings.Join(want, " ") {
		t.Errorf("Entrypoint = %v, want %v", img.Entrypoint, want)
	}

	var path string
	for _, kv := range img.Env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			path = v
		}
	}
	if !strings.HasPrefix(path, "/opt/conda/envs/app/bin:") {
		t.Errorf("PATH = %q, environment bin dir not first", path)
	}

	final := plan.Final()
	for _, p := range []string{
		"app/main.py",
		"app/requirements.txt",
		"opt/conda/envs/app/bin/python3.12",
		"opt/conda/envs/app/lib/site-packages/requests/__init__.py",
		"usr/lib/libgl1.so",
		"etc/os-release",
	} {
		if _, err := os.Stat(filepath.Join(final.Rootfs, p)); err != nil {
			t.Errorf("final rootfs missing %s: %v", p, err)
		}
	}

	// The transplant must carry the environment's symlinks over unchanged,
	// the dangling one included.
	pythonLink := filepath.Join(final.Rootfs, "opt/conda/envs/app/bin/python")
	if fi, err := os.Lstat(pythonLink); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Errorf("bin/python is not a symlink after transplant (err %v)", err)
	}
	if target, _ := os.Readlink(pythonLink); target != "python3.12" {
		t.Errorf("bin/python target = %q, want python3.12", target)
	}
	danglingLink := filepath.Join(final.Rootfs, "opt/conda/envs/app/bin/libexpat.so.1")
	if target, err := os.Readlink(danglingLink); err != nil || target != "../lib/libexpat.so.1" {
		t.Errorf("bin/libexpat.so.1 target = %q (err %v), want ../lib/libexpat.so.1", target, err)
	}

	history := b.History()
	for i := 1; i < len(history); i++ {
		if history[i] <= history[i-1] {
			t.Fatalf("phase history not strictly forward: %v", history)
		}
	}
	if history[len(history)-1] != PhaseCommitted {
		t.Fatalf("history ends at %s, want %s", history[len(history)-1], PhaseCommitted)
	}
}

func TestBuildSecondRunHitsCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := newTestExecutor(t)
	resolver := &fakeResolver{rootfs: newBaseRootfs(t)}
	manifestPath := newManifestFile(t, "requests>=2.0\n")
	appDir := newAppDir(t)

	first := exec.NewBuild(DefaultPlan(testRequest(manifestPath, appDir), newTestCollabs(t, ctrl, resolver, 1).collaborators()))
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Every collaborator expects zero calls: the whole build must replay
	// from the layer store.
	second := exec.NewBuild(DefaultPlan(testRequest(manifestPath, appDir), newTestCollabs(t, ctrl, resolver, 0).collaborators()))
	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	a, b := first.Image().Layers, second.Image().Layers
	if len(a) != len(b) {
		t.Fatalf("layer count diverged: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Digest != b[i].Digest {
			t.Fatalf("layer %d diverged: %s vs %s", i, a[i].Digest, b[i].Digest)
		}
	}
}

func TestBuildCacheLocalityOnAppChange(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := newTestExecutor(t)
	resolver := &fakeResolver{rootfs: newBaseRootfs(t)}
	manifestPath := newManifestFile(t, "requests>=2.0\n")
	appDir := newAppDir(t)

	first := exec.NewBuild(DefaultPlan(testRequest(manifestPath, appDir), newTestCollabs(t, ctrl, resolver, 1).collaborators()))
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	countAfterFirst, err := exec.Store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	mustWrite(t, filepath.Join(appDir, "main.py"), "print('changed')\n")

	// Source change must rebuild only the staging layer; provisioning and
	// dependency install stay cached.
	second := exec.NewBuild(DefaultPlan(testRequest(manifestPath, appDir), newTestCollabs(t, ctrl, resolver, 0).collaborators()))
	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	countAfterSecond, err := exec.Store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := countAfterSecond - countAfterFirst; diff != 1 {
		t.Fatalf("app change produced %d new layers, want 1", diff)
	}
}

func TestBuildUnsatisfiableDependencyAborts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := newTestExecutor(t)
	resolver := &fakeResolver{rootfs: newBaseRootfs(t)}
	manifestPath := newManifestFile(t, "requests>=2.0\nnosuchpkg==9.9\n")
	appDir := newAppDir(t)

	failing := mocks.NewMockDependencyInstaller(ctrl)
	failing.EXPECT().
		Install(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: no matching distribution for nosuchpkg", collab.ErrUnsatisfiable))
	c := Collaborators{
		Resolver: resolver,
		Runtime:  workingRuntime(t, ctrl, 1),
		System:   workingSystem(t, ctrl, 1),
		Deps:     failing,
	}

	b := exec.NewBuild(DefaultPlan(testRequest(manifestPath, appDir), c))
	err := b.Run(context.Background())
	if !errors.Is(err, ErrDependencyResolution) {
		t.Fatalf("error = %v, want ErrDependencyResolution", err)
	}
	if got := b.Phase(); got != PhaseAborted {
		t.Fatalf("Phase = %s, want %s", got, PhaseAborted)
	}
	if b.Image() != nil {
		t.Fatal("aborted build produced an image")
	}

	// The failed step must not have committed a layer: a retry with a
	// working installer still has to run it.
	retryDeps := mocks.NewMockDependencyInstaller(ctrl)
	retryDeps.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	rc := Collaborators{
		Resolver: resolver,
		Runtime:  workingRuntime(t, ctrl, 0),
		System:   workingSystem(t, ctrl, 0),
		Deps:     retryDeps,
	}

	retry := exec.NewBuild(DefaultPlan(testRequest(manifestPath, appDir), rc))
	if err := retry.Run(context.Background()); err != nil {
		t.Fatalf("retry run: %v", err)
	}
}

func TestTransplantRequiresCommittedSource(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t)
	source := &Stage{Name: "src", Rootfs: t.TempDir()}

	final := &Stage{Name: "final", Steps: []Step{
		&TransplantStep{Source: source, Path: "/opt/conda/envs/app"},
	}}

	b := exec.NewBuild(&Plan{Stages: []*Stage{final}})
	err := b.Run(context.Background())
	if !errors.Is(err, ErrTransplant) {
		t.Fatalf("error = %v, want ErrTransplant", err)
	}
	if got := b.Phase(); got != PhaseAborted {
		t.Fatalf("Phase = %s, want %s", got, PhaseAborted)
	}
	if _, statErr := os.Stat(filepath.Join(final.Rootfs, "opt/conda/envs/app")); !os.IsNotExist(statErr) {
		t.Fatal("uncommitted transplant left a destination")
	}
}

func TestTransplantMissingPathLeavesNoPartial(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t)
	source := &Stage{Name: "src", Rootfs: t.TempDir(), Committed: true, Head: digest.FromString("src")}

	final := &Stage{Name: "final", Steps: []Step{
		&TransplantStep{Source: source, Path: "/opt/conda/envs/app"},
	}}

	b := exec.NewBuild(&Plan{Stages: []*Stage{final}})
	err := b.Run(context.Background())
	if !errors.Is(err, ErrTransplant) {
		t.Fatalf("error = %v, want ErrTransplant", err)
	}

	if _, statErr := os.Stat(filepath.Join(final.Rootfs, "opt/conda/envs/app")); !os.IsNotExist(statErr) {
		t.Fatal("failed transplant left a destination")
	}
	if _, statErr := os.Stat(filepath.Join(final.Rootfs, "opt/conda/envs/app.partial")); !os.IsNotExist(statErr) {
		t.Fatal("failed transplant left a partial copy")
	}
}

func TestEnvStepExpansionAndShadowing(t *testing.T) {
	t.Parallel()

	st := &Stage{Env: envset.New()}
	if err := st.Env.Declare("PATH", "/usr/bin"); err != nil {
		t.Fatal(err)
	}

	step := &EnvStep{Decls: []EnvVar{
		{Key: "PATH", Value: "/opt/env/bin:${PATH}"},
		{Key: "MODE", Value: "a"},
		{Key: "MODE", Value: "b"},
	}}
	if err := step.Record(st); err != nil {
		t.Fatal(err)
	}

	if got, _ := st.Env.Get("PATH"); got != "/opt/env/bin:/usr/bin" {
		t.Errorf("PATH = %q, want expanded prepend", got)
	}
	if got, _ := st.Env.Get("MODE"); got != "b" {
		t.Errorf("MODE = %q, later declaration must win", got)
	}
}

func TestEnvStepRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	st := &Stage{Env: envset.New()}
	step := &EnvStep{Decls: []EnvVar{{Key: "", Value: "x"}}}
	if err := step.Record(st); !errors.Is(err, envset.ErrEmptyKey) {
		t.Fatalf("error = %v, want ErrEmptyKey", err)
	}
}

func TestUnavailableInterpreterAborts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := newTestExecutor(t)
	resolver := &fakeResolver{rootfs: newBaseRootfs(t)}

	runtime := mocks.NewMockRuntimeInstaller(ctrl)
	runtime.EXPECT().
		CreateEnvironment(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(collab.Environment{}, fmt.Errorf("%w: no interpreter 9.99", collab.ErrUnavailable))

	c := Collaborators{
		Resolver: resolver,
		Runtime:  runtime,
		System:   mocks.NewMockSystemPackageManager(ctrl),
		Deps:     mocks.NewMockDependencyInstaller(ctrl),
	}
	req := testRequest(newManifestFile(t, "requests>=2.0\n"), newAppDir(t))
	req.RuntimeVersion = "9.99"

	b := exec.NewBuild(DefaultPlan(req, c))
	err := b.Run(context.Background())
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("error = %v, want ErrProvisioning", err)
	}
	if got := b.Phase(); got != PhaseAborted {
		t.Fatalf("Phase = %s, want %s", got, PhaseAborted)
	}
}

func TestForgeignoreExcludesFromStaging(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	exec := newTestExecutor(t)
	resolver := &fakeResolver{rootfs: newBaseRootfs(t)}

	appDir := newAppDir(t)
	mustWrite(t, filepath.Join(appDir, "secrets.env"), "TOKEN=x\n")
	mustWrite(t, filepath.Join(appDir, ".forgeignore"), "*.env\n")

	req := testRequest(newManifestFile(t, "requests>=2.0\n"), appDir)
	plan := DefaultPlan(req, newTestCollabs(t, ctrl, resolver, 1).collaborators())

	b := exec.NewBuild(plan)
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	final := plan.Final()
	if _, err := os.Stat(filepath.Join(final.Rootfs, "app/main.py")); err != nil {
		t.Errorf("main.py not staged: %v", err)
	}
	for _, p := range []string{"app/secrets.env", "app/.forgeignore"} {
		if _, err := os.Stat(filepath.Join(final.Rootfs, p)); !os.IsNotExist(err) {
			t.Errorf("%s staged despite exclusion", p)
		}
	}
}
