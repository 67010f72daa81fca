package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

const clearScreen = "\033[H\033[2J"

// StatusView is the full-screen summary drawn by the gui command: current
// status, files waiting in the input folder and the most recent outcomes.
type StatusView struct {
	dir     string
	keep    int
	status  string
	started time.Time
	waiting []string
	recent  []domain.Outcome

	succeeded, failed, skipped int
}

// NewStatusView creates a view for dir that remembers the last keep outcomes.
func NewStatusView(dir string, keep int) *StatusView {
	if keep < 1 {
		keep = 10
	}
	return &StatusView{dir: dir, keep: keep, status: "Starting", started: time.Now()}
}

// SetStatus replaces the status line.
func (v *StatusView) SetStatus(status string) {
	v.status = status
}

// SetWaiting replaces the list of files waiting in the input folder.
func (v *StatusView) SetWaiting(paths []string) {
	v.waiting = v.waiting[:0]
	for _, p := range paths {
		v.waiting = append(v.waiting, filepath.Base(p))
	}
}

// Record adds an outcome to the log, newest first.
func (v *StatusView) Record(o domain.Outcome) {
	switch o.Status {
	case domain.StatusSucceeded:
		v.succeeded++
	case domain.StatusFailed:
		v.failed++
	case domain.StatusSkipped:
		v.skipped++
	}
	v.recent = append([]domain.Outcome{o}, v.recent...)
	if len(v.recent) > v.keep {
		v.recent = v.recent[:v.keep]
	}
}

// Render returns the view as plain text.
func (v *StatusView) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Screenshot Wizard\n%s\n", strings.Repeat("=", 17))
	fmt.Fprintf(&b, "Status:  %s (up %s)\n", v.status, FormatDuration(time.Since(v.started)))
	fmt.Fprintf(&b, "Folder:  %s\n", v.dir)
	fmt.Fprintf(&b, "Totals:  %d succeeded, %d failed, %d skipped\n\n", v.succeeded, v.failed, v.skipped)

	fmt.Fprintf(&b, "Waiting (%d)\n", len(v.waiting))
	if len(v.waiting) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, name := range v.waiting {
		fmt.Fprintf(&b, "  %s\n", name)
	}

	b.WriteString("\nRecent\n")
	if len(v.recent) == 0 {
		b.WriteString("  (nothing processed yet)\n")
	}
	for _, o := range v.recent {
		fmt.Fprintf(&b, "  %s\n", OutcomeLine(o))
	}

	b.WriteString("\nPress Ctrl+C to stop.\n")
	return b.String()
}

// Draw clears the terminal and writes the view.
func (v *StatusView) Draw() {
	fmt.Fprint(stdout, clearScreen+v.Render())
}
