package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

// Message displays a plain line.
func Message(format string, args ...interface{}) {
	fmt.Fprintf(stdout, format+"\n", args...)
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	green.Fprintf(stdout, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	red.Fprintf(stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	yellow.Fprintf(stdout, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	cyan.Fprintf(stdout, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Newline prints a newline.
func Newline() {
	fmt.Fprintln(stdout)
}

// Section displays a section header.
func Section(title string) {
	bold.Fprintf(stdout, "\n%s\n", title)
	fmt.Fprintf(stdout, "%s\n\n", strings.Repeat("=", len(title)))
}

// KeyValue displays a key-value pair.
func KeyValue(key, value string) {
	fmt.Fprintf(stdout, "  %s: %s\n", key, value)
}

// Table displays rows in aligned columns.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(100 * time.Millisecond)
	minutes := d / time.Minute
	seconds := (d - minutes*time.Minute).Seconds()
	if minutes > 0 {
		return fmt.Sprintf("%dm %.1fs", minutes, seconds)
	}
	return fmt.Sprintf("%.1fs", seconds)
}

// OutcomeLine renders one outcome as a single status line without color.
func OutcomeLine(o domain.Outcome) string {
	name := filepath.Base(o.Path)
	switch o.Status {
	case domain.StatusSucceeded:
		return fmt.Sprintf("✓ %s → %s (%s)", name, filepath.Base(o.ReportPath), FormatDuration(o.Duration))
	case domain.StatusSkipped:
		return fmt.Sprintf("- %s skipped: %s", name, errorText(o.Err))
	default:
		line := fmt.Sprintf("✗ %s failed at %s: %s", name, o.Stage, errorText(o.Err))
		if o.ReportPath != "" {
			line += fmt.Sprintf(" (report kept at %s)", o.ReportPath)
		}
		return line
	}
}

// Outcome prints the per-file result line.
func Outcome(o domain.Outcome) {
	line := OutcomeLine(o)
	switch o.Status {
	case domain.StatusSucceeded:
		green.Fprintln(stdout, line)
	case domain.StatusSkipped:
		yellow.Fprintln(stdout, line)
	default:
		red.Fprintln(stderr, line)
	}
}

// Summary prints the batch counts.
func Summary(result domain.BatchResult) {
	Section("Summary")
	Table([]string{"Result", "Files"}, [][]string{
		{"Succeeded", fmt.Sprint(result.Succeeded)},
		{"Failed", fmt.Sprint(result.Failed)},
		{"Skipped", fmt.Sprint(result.Skipped)},
	})
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
