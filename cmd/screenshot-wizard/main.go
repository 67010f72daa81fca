package main

import (
	"os"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/commands"
	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
)

var (
	version = "1.0.0"
)

func main() {
	commands.Version = version
	if err := commands.Execute(); err != nil {
		ui.Error("Error: %v", err)
		os.Exit(commands.ExitCode(err))
	}
}
