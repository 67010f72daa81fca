package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
	"github.com/spherical/screenshot-wizard/internal/domain"
)

var watchProcessExisting bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the input folder and process new files",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchProcessExisting, "process-existing", false, "process files already in the input folder first")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Section("Screenshot Wizard - Folder Monitor")
	ui.KeyValue("Input folder", a.settings.Folders.Input)
	ui.KeyValue("Output folder", a.settings.Folders.Output)
	ui.KeyValue("Archive folder", a.settings.Folders.Archive)
	ui.Newline()
	if watchProcessExisting {
		ui.Info("Processing existing files first")
	}
	ui.Info("Watching for new files... (press Ctrl+C to stop)")

	var result domain.BatchResult
	err = a.supervise(ctx, watchProcessExisting, domain.Options{}, printOutcomes(&result))

	ui.Newline()
	ui.Info("Stopped after %d file(s): %d succeeded, %d failed, %d skipped",
		len(result.Outcomes), result.Succeeded, result.Failed, result.Skipped)
	return err
}

// printOutcomes prints each outcome as it arrives and tallies it in result.
func printOutcomes(result *domain.BatchResult) consumer {
	return func(ctx context.Context, results <-chan domain.Outcome, done func(domain.Outcome)) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case o, ok := <-results:
				if !ok {
					return nil
				}
				done(o)
				result.Add(o)
				ui.Outcome(o)
			}
		}
	}
}
