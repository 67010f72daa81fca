// Package pipeline runs each input file through classify, convert, analyze,
// render and archive, recording the result as an outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/screenshot-wizard/internal/archive"
	"github.com/spherical/screenshot-wizard/internal/classify"
	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

// Config holds orchestrator settings
type Config struct {
	InputDir string
	// Defaults fill options a caller leaves empty.
	Defaults domain.Options
	// CleanupEmptyDirs removes empty subfolders of InputDir after a batch.
	CleanupEmptyDirs bool
}

// Deps are the stage implementations
type Deps struct {
	Converter domain.Converter
	Analyzer  domain.Analyzer
	Renderer  domain.Renderer
	Archiver  domain.Archiver
}

// Pipeline processes files one at a time. It is safe to reuse but not to
// call concurrently.
type Pipeline struct {
	cfg     Config
	deps    Deps
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a pipeline
func New(cfg Config, deps Deps, logger *observability.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.WithComponent("pipeline"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Process runs one file through every stage. Failures are recorded in the
// outcome, never returned; the source is only archived once its report is
// on disk.
func (p *Pipeline) Process(ctx context.Context, path string, opts domain.Options) (out domain.Outcome) {
	start := time.Now()
	opts = opts.Merge(p.cfg.Defaults)
	log := p.logger.WithFile(filepath.Base(path))

	out = domain.Outcome{
		ID:    uuid.NewString(),
		Path:  path,
		Stage: domain.StageDiscovered,
	}

	defer func() {
		out.Duration = time.Since(start)
		p.metrics.FileDone(string(out.Status))
		switch out.Status {
		case domain.StatusSucceeded:
			log.Info().Str("id", out.ID).Str("report", out.ReportPath).Str("archived_to", out.ArchivePath).
				Dur("duration", out.Duration).Msg("File processed")
		case domain.StatusSkipped:
			log.Warn().Str("id", out.ID).Err(out.Err).Msg("File skipped")
		default:
			log.Error().Str("id", out.ID).Str("stage", string(out.Stage)).Err(out.Err).Msg("File failed")
		}
	}()

	fail := func(err error) domain.Outcome {
		out.Status = domain.StatusFailed
		out.Err = err
		return out
	}

	cand, err := classify.Classify(path)
	if err != nil {
		out.Status = domain.StatusSkipped
		out.Err = err
		return out
	}
	if info, err := os.Stat(path); err != nil {
		return fail(domain.IOError("source file is not accessible", err))
	} else if !info.Mode().IsRegular() {
		return fail(domain.ValidationError(fmt.Sprintf("%s is not a regular file", path), nil))
	}
	out.Stage = domain.StageClassified

	units, cleanup, err := p.prepare(ctx, cand, opts.PageMode, log)
	if err != nil {
		return fail(err)
	}
	defer cleanup()
	if cand.Kind == domain.KindDocument {
		out.Stage = domain.StageConverted
	}

	sections, err := p.analyze(ctx, units, opts.Mode, cand.Kind)
	if err != nil {
		return fail(err)
	}
	out.Stage = domain.StageAnalyzed

	stageStart := time.Now()
	prov := domain.Provenance{SourceName: filepath.Base(path), ProcessedAt: p.now()}
	reportPath, err := p.deps.Renderer.Render(sections, prov, opts.Thumbnail)
	if err != nil {
		return fail(typed(err, domain.RenderError, "failed to render report"))
	}
	p.metrics.ObserveStage("render", time.Since(stageStart))
	out.ReportPath = reportPath
	out.Stage = domain.StageRendered

	// rendered pages and the document handle go before the source moves
	cleanup()

	stageStart = time.Now()
	archived, err := p.deps.Archiver.Archive(path)
	if err != nil {
		return fail(typed(err, domain.ArchiveError, "report written but source not archived"))
	}
	p.metrics.ObserveStage("archive", time.Since(stageStart))
	out.ArchivePath = archived
	out.Stage = domain.StageArchived
	out.Status = domain.StatusSucceeded
	return out
}

// prepare returns the analysis units for a candidate and a cleanup function
// that is safe to call more than once.
func (p *Pipeline) prepare(ctx context.Context, cand domain.Candidate, pageMode domain.PageMode, log *observability.Logger) ([][]domain.PageImage, func(), error) {
	noop := func() {}

	if cand.Kind == domain.KindImage {
		return [][]domain.PageImage{{{PageNumber: 1, ImagePath: cand.Path}}}, noop, nil
	}

	start := time.Now()
	set, err := p.deps.Converter.Convert(ctx, cand.Path)
	if err != nil {
		return nil, noop, typed(err, domain.ConversionError, "failed to convert document")
	}
	p.metrics.ObserveStage("convert", time.Since(start))

	cleanup := func() {
		if err := set.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("Failed to clean up rendered pages")
		}
	}

	units := domain.GroupPages(set.Pages(), pageMode)
	if len(units) == 0 {
		cleanup()
		return nil, noop, domain.ConversionError("document produced no pages", nil)
	}
	return units, cleanup, nil
}

func (p *Pipeline) analyze(ctx context.Context, units [][]domain.PageImage, mode domain.Mode, kind domain.Kind) ([]domain.Analysis, error) {
	start := time.Now()
	sections := make([]domain.Analysis, 0, len(units))

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := p.deps.Analyzer.Analyze(ctx, unit, mode)
		if err != nil {
			return nil, typed(err, domain.APIError, "analysis failed")
		}
		section := *a
		section.Label = sectionLabel(kind, unit, len(units))
		sections = append(sections, section)
	}

	p.metrics.ObserveStage("analyze", time.Since(start))
	return sections, nil
}

// sectionLabel names a report section after the pages it covers.
func sectionLabel(kind domain.Kind, unit []domain.PageImage, units int) string {
	if kind != domain.KindDocument || len(unit) == 0 {
		return ""
	}
	first, last := unit[0].PageNumber, unit[len(unit)-1].PageNumber
	switch {
	case len(unit) == 1 && units > 1:
		return fmt.Sprintf("Page %d", first)
	case first != last:
		return fmt.Sprintf("Pages %d-%d", first, last)
	default:
		return ""
	}
}

// typed keeps err's own domain type and wraps untyped errors with ctor.
func typed(err error, ctor func(string, error) *domain.DomainError, msg string) error {
	if domain.TypeOf(err) != "" || errors.Is(err, context.Canceled) {
		return err
	}
	return ctor(msg, err)
}

// BatchObserver is told about each outcome as a batch progresses.
type BatchObserver func(done, total int, o domain.Outcome)

// Batch processes every file in the input folder, oldest first. Unsupported
// files are recorded as skipped. A failing file never stops the batch; only
// an unreadable input folder or cancellation does.
func (p *Pipeline) Batch(ctx context.Context, opts domain.Options, observe BatchObserver) (domain.BatchResult, error) {
	var result domain.BatchResult

	listing, err := classify.ListCandidates(p.cfg.InputDir)
	if err != nil {
		return result, err
	}

	total := len(listing.Rejected) + len(listing.Candidates)
	p.logger.Info().Int("files", len(listing.Candidates)).Int("unsupported", len(listing.Rejected)).
		Msg("Starting batch")

	record := func(o domain.Outcome) {
		result.Add(o)
		if observe != nil {
			observe(len(result.Outcomes), total, o)
		}
	}

	for _, path := range listing.Rejected {
		record(p.Process(ctx, path, opts))
	}
	for _, c := range listing.Candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		record(p.Process(ctx, c.Path, opts))
	}

	if p.cfg.CleanupEmptyDirs {
		if _, err := archive.CleanupEmptyDirs(p.cfg.InputDir, p.logger); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to clean up input folder")
		}
	}

	p.logger.Info().Int("succeeded", result.Succeeded).Int("failed", result.Failed).Int("skipped", result.Skipped).
		Msg("Batch complete")
	return result, nil
}

// Run processes paths from in sequentially and publishes each outcome until
// ctx is cancelled or in is closed.
func (p *Pipeline) Run(ctx context.Context, in <-chan string, results chan<- domain.Outcome, opts domain.Options) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-in:
			if !ok {
				return nil
			}
			o := p.Process(ctx, path, opts)
			select {
			case results <- o:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
