package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
)

// Version is set by main, usually from build flags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ui.Message("Screenshot Wizard version %s", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
