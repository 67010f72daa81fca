package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the extension-derived classification of a candidate file
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindRejected Kind = "rejected"
)

// Candidate is a path discovered in the input folder together with its kind.
// It only lives for the duration of one pipeline pass.
type Candidate struct {
	Path string
	Ext  string // lowercased, with leading dot
	Kind Kind
}

// Mode selects how the analyzer treats an image
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeText    Mode = "text"
	ModeGraphic Mode = "graphic"
)

// ParseMode parses a content mode case-insensitively. An empty string yields "".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAuto, ModeText, ModeGraphic:
		return m, nil
	default:
		return "", ValidationError(fmt.Sprintf("unknown content mode %q (want auto, text or graphic)", s), nil)
	}
}

// PageMode controls how multi-page documents are analyzed
type PageMode string

const (
	PageModePerPage       PageMode = "per-page"
	PageModeWholeDocument PageMode = "whole-document"
)

// ParsePageMode parses a page mode; "page" and "document" are accepted as aliases.
func ParsePageMode(s string) (PageMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "per-page", "per_page", "page":
		return PageModePerPage, nil
	case "whole-document", "whole_document", "document", "whole":
		return PageModeWholeDocument, nil
	default:
		return "", ValidationError(fmt.Sprintf("unknown page mode %q (want per-page or whole-document)", s), nil)
	}
}

// ThumbnailSize is one of the named embedded-image sizes
type ThumbnailSize string

const (
	ThumbnailNone   ThumbnailSize = "none"
	ThumbnailSmall  ThumbnailSize = "small"
	ThumbnailMedium ThumbnailSize = "medium"
	ThumbnailFull   ThumbnailSize = "full"
)

// ParseThumbnailSize parses a thumbnail size case-insensitively.
func ParseThumbnailSize(s string) (ThumbnailSize, error) {
	switch t := ThumbnailSize(strings.ToLower(strings.TrimSpace(s))); t {
	case "", ThumbnailNone, ThumbnailSmall, ThumbnailMedium, ThumbnailFull:
		return t, nil
	default:
		return "", ValidationError(fmt.Sprintf("unknown thumbnail size %q (want none, small, medium or full)", s), nil)
	}
}

// Options are per-invocation overrides. Zero values fall back to settings.
type Options struct {
	Mode      Mode
	Thumbnail ThumbnailSize
	PageMode  PageMode
}

// Merge returns o with empty fields filled from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.Mode == "" {
		o.Mode = defaults.Mode
	}
	if o.Thumbnail == "" {
		o.Thumbnail = defaults.Thumbnail
	}
	if o.PageMode == "" {
		o.PageMode = defaults.PageMode
	}
	return o
}

// PageImage represents a single rasterized page or a standalone image
type PageImage struct {
	PageNumber int
	ImagePath  string
	Width      int
	Height     int
}

// Analysis is the result of analyzing one unit of images
type Analysis struct {
	Mode       Mode // text or graphic, never auto
	Text       string
	Categories []string
	// ImagePath is set for graphic results and points at the image to embed.
	ImagePath string
	// Label names the section in multi-section reports, e.g. "Page 2".
	Label string
}

// Provenance is the footer metadata of a report
type Provenance struct {
	SourceName  string
	ProcessedAt time.Time
}

// Stage is a step of the per-file state machine
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageClassified Stage = "classified"
	StageConverted  Stage = "converted"
	StageAnalyzed   Stage = "analyzed"
	StageRendered   Stage = "rendered"
	StageArchived   Stage = "archived"
)

// Status is the terminal status of an outcome
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome is the per-file record produced by one orchestrator pass
type Outcome struct {
	ID          string
	Path        string
	Status      Status
	Stage       Stage // last stage reached successfully
	ReportPath  string
	ArchivePath string
	Err         error
	Duration    time.Duration
}

// Succeeded reports whether the pass completed and the source was archived.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// BatchResult aggregates the outcomes of a batch run
type BatchResult struct {
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Skipped   int
}

// Add records an outcome and updates the counters.
func (b *BatchResult) Add(o Outcome) {
	b.Outcomes = append(b.Outcomes, o)
	switch o.Status {
	case StatusSucceeded:
		b.Succeeded++
	case StatusFailed:
		b.Failed++
	case StatusSkipped:
		b.Skipped++
	}
}

// Attempted is the number of files that entered the pipeline.
func (b *BatchResult) Attempted() int {
	return b.Succeeded + b.Failed
}
