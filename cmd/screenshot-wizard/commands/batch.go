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
	"github.com/spherical/screenshot-wizard/internal/domain"
)

var batchFlags overrideFlags

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every file waiting in the input folder",
	Long: `Process every file waiting in the input folder, oldest first. Unsupported
files are reported as skipped. Per-file failures are listed in the summary and
do not change the exit status.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchFlags.register(batchCmd)
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	opts, err := batchFlags.options()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Section("Batch Processing")
	ui.KeyValue("Input folder", a.settings.Folders.Input)
	ui.Newline()

	var bar *ui.ProgressBar
	result, err := a.pipeline.Batch(ctx, opts, func(done, total int, o domain.Outcome) {
		if bar == nil {
			bar = ui.NewProgressBar(total, "Processing")
		}
		bar.Set(done, fmt.Sprintf("Processed %s", filepath.Base(o.Path)))
		if o.Status == domain.StatusFailed || ui.Verbose() {
			ui.Outcome(o)
		}
	})
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if len(result.Outcomes) == 0 {
		ui.Info("No files found in input folder")
		return nil
	}

	ui.Summary(result)
	ui.Newline()
	ui.Message("Processed %d/%d files successfully.", result.Succeeded, result.Attempted())
	return nil
}
