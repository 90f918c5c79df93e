package imgforge

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/imgforge/imgforge/internal/apps/imgforge/config"
	"github.com/imgforge/imgforge/internal/buildcfg"
	"github.com/imgforge/imgforge/internal/collab"
	"github.com/imgforge/imgforge/internal/dockerclient"
	"github.com/imgforge/imgforge/internal/export"
	"github.com/imgforge/imgforge/internal/guardrails"
	"github.com/imgforge/imgforge/internal/imageref"
	"github.com/imgforge/imgforge/internal/layer"
	"github.com/imgforge/imgforge/internal/logs"
	"github.com/imgforge/imgforge/internal/pipeline"
	"github.com/imgforge/imgforge/internal/runtime"
	"github.com/imgforge/imgforge/internal/state"
	"github.com/imgforge/imgforge/internal/ui"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [PATH]",
		Short: "Build the runtime image described by forge.yaml",
		Long: `Build the runtime image for the project at PATH (default: current
directory). Configuration comes from forge.yaml in that directory,
IMGFORGE_* environment variables, and flags, in increasing precedence.`,
		Args: cobra.MaximumNArgs(1),
		RunE: buildCmdRunE,
	}

	attachBuildCmdFlags(cmd)

	return cmd
}

func attachBuildCmdFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("tag", "t", "", "name for the exported image")
	cmd.Flags().StringP("output", "o", "", "directory the OCI layout is written to")
	cmd.Flags().Bool("load", false, "load the exported image into the local Docker daemon")
}

func buildCmdRunE(cmd *cobra.Command, args []string) error {
	rt := runtime.FromContextOrPanic(cmd.Context())
	ctx := rt.Ctx()

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	cfg, err := buildcfg.Load(dir, cmd.Flags())
	if err != nil {
		return err
	}

	req, err := cfg.Request()
	if err != nil {
		return err
	}

	// A missing manifest at the default location just means "no deps".
	if req.ManifestPath != "" {
		if _, err := os.Stat(req.ManifestPath); err != nil {
			if cfg.Manifest != "requirements.txt" {
				return fmt.Errorf("manifest %s: %w", req.ManifestPath, err)
			}
			req.ManifestPath = ""
		}
	}

	if req.AppDir != "" {
		if err := guardrails.CheckStagingSource(req.AppDir); err != nil {
			return fmt.Errorf("app source %s: %w", req.AppDir, err)
		}
	}

	rt.OpenBuildLog()
	logs.Banner(fmt.Sprintf("imgforge build %s", rt.BuildID()))
	logs.Infof("base %s, python %s", req.Base, req.RuntimeVersion)

	db, err := state.OpenDefault(ctx)
	if err != nil {
		return err
	}

	store, err := layer.Open(ctx, appconfig.LayerStorePath(), db)
	if err != nil {
		return err
	}

	tag := cfg.Tag
	if tag == "" {
		tag = cfg.Runtime.EnvName + ":latest"
	}

	exec := &pipeline.Executor{
		Store: store,
		Exporter: &export.LayoutWriter{
			Store: store,
			Dir:   cfg.OutputDir(),
			Tag:   tag,
		},
		WorkDir: appconfig.WorkPath(rt.BuildID()),
	}
	defer func() {
		if err := os.RemoveAll(appconfig.WorkPath(rt.BuildID())); err != nil {
			logs.Warnf("can't clean work directory: %v", err)
		}
	}()

	plan := pipeline.DefaultPlan(req, pipeline.Collaborators{
		Resolver: imageref.NewRegistryResolver(appconfig.BaseCachePath()),
		Runtime:  collab.NewCondaInstaller(cfg.Runtime.Installer),
		System:   collab.NewAptManager(),
		Deps:     collab.NewPipInstaller(),
	})

	build := exec.NewBuild(plan)
	if err := build.Run(ctx); err != nil {
		return fmt.Errorf("build failed at phase %s: %w", build.Phase(), err)
	}

	img := build.Image()
	logs.Infof("committed %d layers to %s (tag %s)", len(img.Layers), cfg.OutputDir(), tag)
	printLayerTable(img)

	if cfg.Load {
		if err := loadIntoDaemon(rt, cfg.OutputDir(), tag); err != nil {
			return err
		}
	}

	return nil
}

func printLayerTable(img *pipeline.Image) {
	tbl := ui.NewTable(
		ui.Column{Header: "LAYER", MaxWidth: 22, Truncate: ui.TruncateMiddle},
		ui.Column{Header: "SIZE", Align: ui.AlignRight},
	)
	for _, ref := range img.Layers {
		tbl.AddRow(ref.Digest.Encoded(), formatSize(ref.Size))
	}
	if err := tbl.Render(os.Stdout); err != nil {
		logs.Debugf("can't render layer table: %v", err)
	}
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// loadIntoDaemon streams the layout into the local Docker daemon as a tar.
func loadIntoDaemon(rt *runtime.Runtime, layoutDir, tag string) error {
	dc, err := dockerclient.NewDockerClient()
	if err != nil {
		return fmt.Errorf("docker daemon: %w", err)
	}

	pr, pw := io.Pipe()
	rt.GoNamed("layout-tar", func() {
		pw.CloseWithError(export.TarLayout(layoutDir, pw))
	})

	if err := dc.Load(rt.Ctx(), pr); err != nil {
		return fmt.Errorf("load into daemon: %w", err)
	}

	// The load response is drained quietly; ask the daemon whether the tag
	// actually landed.
	if !dc.ImageExists(rt.Ctx(), tag) {
		return fmt.Errorf("load into daemon: %s not visible after load", tag)
	}

	logs.Infof("loaded %s into the local daemon", tag)
	return nil
}
