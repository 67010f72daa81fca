// Package archive moves processed files out of the input folder and places
// finished reports into the output folder, never overwriting an existing file.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

// maxAttempts bounds the counter suffix search.
const maxAttempts = 10000

// Archiver implements domain.Archiver
type Archiver struct {
	archiveDir string
	outputDir  string
	now        func() time.Time
	logger     *observability.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// New creates an archiver for the given archive and output folders
func New(archiveDir, outputDir string, logger *observability.Logger) *Archiver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Archiver{
		archiveDir: archiveDir,
		outputDir:  outputDir,
		now:        time.Now,
		logger:     logger.WithComponent("archive"),
	}
}

// Archive moves path into the archive folder and returns the destination.
func (a *Archiver) Archive(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", domain.ArchiveError("source is not accessible", err)
	}
	if !info.Mode().IsRegular() {
		return "", domain.ArchiveError(fmt.Sprintf("%s is not a regular file", path), nil)
	}
	if err := os.MkdirAll(a.archiveDir, 0o755); err != nil {
		return "", domain.ArchiveError("failed to create archive folder", err)
	}

	dest, err := place(path, a.archiveDir, filepath.Base(path), a.now())
	if err != nil {
		return "", domain.ArchiveError(fmt.Sprintf("failed to archive %s", filepath.Base(path)), err)
	}

	a.logger.Info().Str("file", filepath.Base(path)).Str("archived_to", dest).Msg("Archived source file")
	return dest, nil
}

// Publish moves a finished temp file into the output folder as name, picking
// a free name when it is taken.
func (a *Archiver) Publish(tmpPath, name string) (string, error) {
	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		return "", domain.IOError("failed to create output folder", err)
	}
	dest, err := place(tmpPath, a.outputDir, name, a.now())
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to publish %s", name), err)
	}
	return dest, nil
}

// OutputDir returns the folder reports are published to.
func (a *Archiver) OutputDir() string {
	return a.outputDir
}

// Candidates yields the destination names tried for name, in order: the name
// itself, then name with a timestamp suffix, then with a counter appended.
func Candidates(name string, now time.Time) iter.Seq2[int, string] {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamped := stem + "_" + now.Format("20060102_150405")

	return func(yield func(int, string) bool) {
		if !yield(0, name) {
			return
		}
		if !yield(1, stamped+ext) {
			return
		}
		for n := 1; n < maxAttempts; n++ {
			if !yield(n+1, fmt.Sprintf("%s_%d%s", stamped, n, ext)) {
				return
			}
		}
	}
}

// place moves src into dir under the first free candidate name.
func place(src, dir, name string, now time.Time) (string, error) {
	for _, candidate := range Candidates(name, now) {
		dest := filepath.Join(dir, candidate)
		err := move(src, dest)
		if err == nil {
			return dest, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

// move relocates src to dest and fails with fs.ErrExist instead of replacing
// dest. A hard link is tried first; across devices or on filesystems without
// links the file is copied with O_EXCL.
func move(src, dest string) error {
	if err := os.Link(src, dest); err == nil {
		return os.Remove(src)
	} else if errors.Is(err, fs.ErrExist) {
		return err
	}
	return copyMove(src, dest)
}

func copyMove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}

	in.Close()
	return os.Remove(src)
}

// CleanupEmptyDirs removes empty subdirectories directly under dir and returns
// how many were removed.
func CleanupEmptyDirs(dir string, logger *observability.Logger) (int, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, domain.IOError("failed to read input folder", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		children, err := os.ReadDir(sub)
		if err != nil || len(children) > 0 {
			continue
		}
		if err := os.Remove(sub); err != nil {
			logger.Warn().Err(err).Str("dir", sub).Msg("Failed to remove empty directory")
			continue
		}
		logger.Debug().Str("dir", sub).Msg("Removed empty directory")
		removed++
	}
	return removed, nil
}
