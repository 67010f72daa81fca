// Package ui provides terminal output helpers for the screenshot-wizard CLI.
package ui

import (
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	stdoutDefault io.Writer = os.Stdout
	stderrDefault io.Writer = os.Stderr

	stdout = stdoutDefault
	stderr = stderrDefault

	verboseFlag bool

	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// InitUI initializes the UI with color and verbose settings.
func InitUI(noColor, verbose bool) {
	verboseFlag = verbose
	if noColor {
		color.NoColor = true
	}
}

// SetOutput redirects normal and error output. Used by tests.
func SetOutput(out, errOut io.Writer) {
	stdout = out
	stderr = errOut
}

// Verbose reports whether verbose output was requested.
func Verbose() bool {
	return verboseFlag
}
