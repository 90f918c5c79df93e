package imgforge

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/imgforge/imgforge/internal/apps/imgforge/config"
	"github.com/imgforge/imgforge/internal/layer"
	"github.com/imgforge/imgforge/internal/logs"
	"github.com/imgforge/imgforge/internal/runtime"
	"github.com/imgforge/imgforge/internal/state"
	"github.com/imgforge/imgforge/internal/ui"
)

type cleanOptions struct {
	Layers bool
	Bases  bool
	All    bool
	Yes    bool
}

func newCleanCmd() *cobra.Command {
	opts := &cleanOptions{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean up cached layers and base images",
		Long: `Clean up imgforge caches.

With no scope flags the command asks what to clean; '--yes' takes
everything without prompting. Removed caches mean the next build
rebuilds the affected layers from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.All {
				opts.Layers = true
				opts.Bases = true
			}

			return runClean(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Clean everything (default behavior)")
	cmd.Flags().BoolVar(&opts.Layers, "layers", false, "Clean cached layers only")
	cmd.Flags().BoolVar(&opts.Bases, "bases", false, "Clean cached base images only")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runClean(cmd *cobra.Command, opts *cleanOptions) error {
	rt := runtime.FromContextOrPanic(cmd.Context())
	ctx := rt.Ctx()

	// No scope given: ask interactively, or take everything under --yes.
	if !opts.Layers && !opts.Bases {
		if opts.Yes {
			opts.Layers = true
			opts.Bases = true
		} else {
			rt.Term().Save()
			choice, err := logs.PromptSelectOne("What should be cleaned?", []ui.SelectOption{
				logs.NewSelectOption("everything", "all"),
				logs.NewSelectOption("cached layers", "layers"),
				logs.NewSelectOption("cached base images", "bases"),
			})
			rt.Term().Restore()
			if err != nil {
				return err
			}
			switch choice.OptionID() {
			case "layers":
				opts.Layers = true
			case "bases":
				opts.Bases = true
			default:
				opts.Layers = true
				opts.Bases = true
			}
		}
	}

	if !opts.Yes {
		rt.Term().Save()
		ok, err := logs.PromptConfirm("Remove cached build state? The next build starts cold.")
		rt.Term().Restore()
		if err != nil {
			return err
		}
		if !ok {
			logs.Infof("aborted")
			return nil
		}
	}

	if opts.Layers {
		db, err := state.OpenDefault(ctx)
		if err != nil {
			return err
		}
		store, err := layer.Open(ctx, appconfig.LayerStorePath(), db)
		if err != nil {
			return err
		}
		n, err := store.Count(ctx)
		if err != nil {
			return err
		}
		if err := store.Purge(ctx); err != nil {
			return fmt.Errorf("purge layers: %w", err)
		}
		logs.Infof("removed %d cached layers", n)
	}

	if opts.Bases {
		if err := os.RemoveAll(appconfig.BaseCachePath()); err != nil {
			return fmt.Errorf("purge base cache: %w", err)
		}
		logs.Infof("removed cached base images")
	}

	return nil
}
