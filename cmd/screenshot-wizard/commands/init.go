package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
	"github.com/spherical/screenshot-wizard/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the input, output and archive folders",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ui.Section("Screenshot Wizard Setup")

	if err := settings.EnsureFolders(); err != nil {
		return err
	}
	for _, dir := range []string{settings.Folders.Input, settings.Folders.Output, settings.Folders.Archive} {
		ui.Success("Folder ready: %s", dir)
	}

	if needsEnvHint(".") {
		ui.Newline()
		ui.Warning("API key setup required")
		ui.Message("  1. Copy .env.example to .env")
		ui.Message("  2. Edit .env and set %s", config.APIKeyEnv)
		ui.Message("  Your API key is stored locally only and never shared.")
	}

	ui.Newline()
	ui.Success("Initialization complete")
	ui.Info("Run 'screenshot-wizard watch' to start monitoring")
	return nil
}

// needsEnvHint reports whether dir has an .env.example but no .env yet.
func needsEnvHint(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".env")); err == nil {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, ".env.example"))
	return err == nil
}
