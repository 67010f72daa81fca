package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/screenshot-wizard/cmd/screenshot-wizard/ui"
	"github.com/spherical/screenshot-wizard/internal/classify"
	"github.com/spherical/screenshot-wizard/internal/domain"
)

const (
	guiRedrawInterval = 200 * time.Millisecond
	// guiListEvery is how many redraws pass between input folder listings.
	guiListEvery = 10
)

var guiProcessExisting bool

var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Watch the input folder with a live status view",
	Args:  cobra.NoArgs,
	RunE:  runGUI,
}

func init() {
	guiCmd.Flags().BoolVar(&guiProcessExisting, "process-existing", false, "process files already in the input folder first")
	rootCmd.AddCommand(guiCmd)
}

func runGUI(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := ui.NewStatusView(a.settings.Folders.Input, 10)
	return a.supervise(ctx, guiProcessExisting, domain.Options{}, pollOutcomes(view, a.settings.Folders.Input))
}

// pollOutcomes drains finished outcomes on a fixed tick and redraws the view,
// so a slow file never freezes the screen.
func pollOutcomes(view *ui.StatusView, dir string) consumer {
	return func(ctx context.Context, results <-chan domain.Outcome, done func(domain.Outcome)) error {
		ticker := time.NewTicker(guiRedrawInterval)
		defer ticker.Stop()

		view.SetStatus("Watching")
		for tick := 0; ; tick++ {
			select {
			case <-ctx.Done():
				view.SetStatus("Stopped")
				view.Draw()
				return nil
			case <-ticker.C:
			}

			if closed := drain(results, func(o domain.Outcome) {
				done(o)
				view.Record(o)
			}); closed {
				view.SetStatus("Stopped")
				view.Draw()
				return nil
			}

			if tick%guiListEvery == 0 {
				if listing, err := classify.ListCandidates(dir); err == nil {
					paths := make([]string, 0, len(listing.Candidates))
					for _, c := range listing.Candidates {
						paths = append(paths, c.Path)
					}
					view.SetWaiting(paths)
				}
			}
			view.Draw()
		}
	}
}

// drain hands every outcome already queued to fn without blocking and
// reports whether the channel has been closed.
func drain(results <-chan domain.Outcome, fn func(domain.Outcome)) bool {
	for {
		select {
		case o, ok := <-results:
			if !ok {
				return true
			}
			fn(o)
		default:
			return false
		}
	}
}
