package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
	"github.com/spherical/screenshot-wizard/internal/classify"
	"github.com/spherical/screenshot-wizard/internal/domain"
)

// overrideFlags are the per-invocation processing options shared by process
// and batch.
type overrideFlags struct {
	mode      string
	thumbnail string
	pageMode  string
}

func (f *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "content mode: auto, text or graphic")
	cmd.Flags().StringVarP(&f.thumbnail, "thumbnail", "t", "", "thumbnail size: none, small, medium or full")
	cmd.Flags().StringVarP(&f.pageMode, "page-mode", "p", "", "PDF page mode: per-page or whole-document")
}

func (f *overrideFlags) options() (domain.Options, error) {
	return parseOptions(f.mode, f.thumbnail, f.pageMode)
}

var processFlags overrideFlags

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process a single image or PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	processFlags.register(processCmd)
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	path := args[0]

	opts, err := processFlags.options()
	if err != nil {
		return err
	}
	if _, err := classify.Classify(path); err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Info("Processing: %s", path)
	spinner := ui.NewSpinner(fmt.Sprintf("Analyzing %s...", filepath.Base(path)))
	spinner.Start()
	o := a.pipeline.Process(ctx, path, opts)
	spinner.Stop()

	ui.Outcome(o)
	if !o.Succeeded() {
		return fmt.Errorf("%s was not processed (%s)", filepath.Base(path), o.Status)
	}

	ui.Newline()
	ui.Table([]string{"Item", "Value"}, [][]string{
		{"Report", o.ReportPath},
		{"Archived to", o.ArchivePath},
		{"Duration", ui.FormatDuration(o.Duration)},
	})
	return nil
}
