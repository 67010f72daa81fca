package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
	"github.com/spherical/screenshot-wizard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ui.Message("%s", settings.Display())
	if err := settings.RequireCredential(); err != nil {
		ui.Warning("Set %s in your .env file before processing", config.APIKeyEnv)
	}
	return nil
}
