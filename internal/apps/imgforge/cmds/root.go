package imgforge

import (
	"github.com/spf13/cobra"

	"github.com/imgforge/imgforge/internal/logs"
	"github.com/imgforge/imgforge/internal/runtime"
)

var verbosity int

func Execute(rt *runtime.Runtime) error {
	rootCmd := &cobra.Command{
		Use:   "imgforge [PATH]",
		Short: "Reproducible runtime images for Python applications",
		Long: `imgforge builds a container image holding a pinned Python runtime,
system packages, dependencies, and your application code, layer by layer
with aggressive caching.

By default, 'imgforge' is equivalent to 'imgforge build [PATH]'.
If PATH is omitted, the current working directory is used.`,
		Args: cobra.MaximumNArgs(1),
		// Default behavior is the same as 'build'
		RunE: buildCmdRunE,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logs.SetDebugVerbosity(verbosity)
			return nil
		},
		// we will handle that
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity level")

	// Root should accept the same flags as `build`
	attachBuildCmdFlags(rootCmd)

	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd.ExecuteContext(rt.Ctx())
}
