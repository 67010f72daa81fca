// Package classify decides which input files the pipeline accepts.
package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

var supported = map[string]domain.Kind{
	".png":  domain.KindImage,
	".jpg":  domain.KindImage,
	".jpeg": domain.KindImage,
	".pdf":  domain.KindDocument,
}

// SupportedExtensions returns the accepted extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supported))
	for ext := range supported {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Kind returns the kind for a path based on its extension alone.
func Kind(path string) domain.Kind {
	if kind, ok := supported[strings.ToLower(filepath.Ext(path))]; ok {
		return kind
	}
	return domain.KindRejected
}

// Classify returns the candidate for path. Unsupported extensions yield a
// rejected candidate together with an unsupported error.
func Classify(path string) (domain.Candidate, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c := domain.Candidate{Path: path, Ext: ext, Kind: Kind(path)}
	if c.Kind == domain.KindRejected {
		if ext == "" {
			ext = "(none)"
		}
		return c, domain.UnsupportedError(
			fmt.Sprintf("unsupported file type %s for %s (supported: %s)", ext, filepath.Base(path), strings.Join(SupportedExtensions(), ", ")), nil)
	}
	return c, nil
}

// Listing is the result of scanning a folder.
type Listing struct {
	Candidates []domain.Candidate
	Rejected   []string
}

// ListCandidates scans dir once and splits regular files into supported
// candidates (oldest first) and rejected paths. Each directory entry is seen
// exactly once regardless of extension case. Directories and dotfiles are
// ignored.
func ListCandidates(dir string) (*Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("list folder %s", dir), err)
	}

	type dated struct {
		c   domain.Candidate
		mod time.Time
	}
	var found []dated
	listing := &Listing{}

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		c, err := Classify(path)
		if err != nil {
			listing.Rejected = append(listing.Rejected, path)
			continue
		}
		var mod time.Time
		if info, err := e.Info(); err == nil {
			mod = info.ModTime()
		}
		found = append(found, dated{c: c, mod: mod})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].mod.Equal(found[j].mod) {
			return found[i].mod.Before(found[j].mod)
		}
		return found[i].c.Path < found[j].c.Path
	})
	for _, d := range found {
		listing.Candidates = append(listing.Candidates, d.c)
	}
	sort.Strings(listing.Rejected)

	return listing, nil
}
