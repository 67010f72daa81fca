// Package commands implements the screenshot-wizard command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "screenshot-wizard",
	Short: "Screenshot Wizard - turn screenshots and PDFs into categorized reports",
	Long: `Screenshot Wizard watches an input folder for screenshots and PDF documents,
reads or describes them with a vision model, writes a categorized PDF report
to the output folder and moves each processed source into the archive folder.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.InitUI(noColor, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "settings file path (default config/settings.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
