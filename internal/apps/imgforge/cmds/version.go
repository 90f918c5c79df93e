package imgforge

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imgforge/imgforge/internal/version"
	"github.com/imgforge/imgforge/internal/versioncheck"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of imgforge",
		Long:  `Display the current version of imgforge and check for updates.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s\n", version.Get())

			versioncheck.PrintUpdateBanner(versioncheck.Check(cmd.Context()))
		},
	}

	return cmd
}
