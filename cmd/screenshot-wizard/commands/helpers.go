package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/screenshot-wizard/internal/analyze"
	"github.com/spherical/screenshot-wizard/internal/archive"
	"github.com/spherical/screenshot-wizard/internal/config"
	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/llm"
	"github.com/spherical/screenshot-wizard/internal/observability"
	"github.com/spherical/screenshot-wizard/internal/pdf"
	"github.com/spherical/screenshot-wizard/internal/pipeline"
	"github.com/spherical/screenshot-wizard/internal/report"
	"github.com/spherical/screenshot-wizard/internal/watcher"
)

// ExitCode maps a command error to a process exit status. Configuration
// problems exit with 2, everything else with 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case domain.IsType(err, domain.ErrorTypeConfig):
		return 2
	default:
		return 1
	}
}

// app is the fully wired pipeline for one command invocation.
type app struct {
	settings *config.Settings
	logger   *observability.Logger
	metrics  *observability.Metrics
	archiver *archive.Archiver
	pipeline *pipeline.Pipeline
}

func loadSettings() (*config.Settings, error) {
	return config.Load(cfgFile)
}

func newLogger(s *config.Settings) *observability.Logger {
	level := s.Logging.Level
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      s.Logging.Format,
		Output:      os.Stderr,
		ServiceName: "screenshot-wizard",
	})
}

// newApp loads settings, checks the credential and creates the folders before
// wiring every stage.
func newApp() (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if err := settings.RequireCredential(); err != nil {
		return nil, err
	}
	if err := settings.EnsureFolders(); err != nil {
		return nil, err
	}
	return buildApp(settings, newLogger(settings))
}

func buildApp(s *config.Settings, logger *observability.Logger) (*app, error) {
	defaults, err := s.Defaults()
	if err != nil {
		return nil, domain.ConfigError("invalid processing defaults", err)
	}

	detector, err := analyze.DetectorFor(s.Processing.AutoDetect)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()

	client := llm.NewClient(llm.Config{
		APIKey:    s.APIKey,
		Model:     s.OpenAI.Model,
		BaseURL:   s.OpenAI.BaseURL,
		MaxTokens: s.OpenAI.MaxTokens,
		Timeout:   s.RequestTimeout(),
	})
	logger.Debug().Str("model", client.Model()).Str("base_url", s.OpenAI.BaseURL).
		Msgf("Analyzing with up to %d categories per report", s.Processing.MaxCategories)

	var analyzer domain.Analyzer = analyze.NewService(client, analyze.Config{
		MaxCategories: s.Processing.MaxCategories,
		Detector:      detector,
	}, logger)
	analyzer = analyze.WithRateLimit(analyzer, s.OpenAI.RequestsPerMinute)
	analyzer = analyze.WithRetry(analyzer, analyze.DefaultRetryConfig(s.OpenAI.MaxRetries), logger)

	archiver := archive.New(s.Folders.Archive, s.Folders.Output, logger)

	renderer, err := report.NewRenderer(report.Config{
		PageSize:      s.PDF.PageSize,
		FontFamily:    s.PDF.FontFamily,
		FontSize:      s.PDF.FontSize,
		Margin:        s.PDF.Margin,
		UnicodeFont:   s.PDF.UnicodeFont,
		MaxCategories: s.Processing.MaxCategories,
	}, archiver, logger)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(pipeline.Config{
		InputDir:         s.Folders.Input,
		Defaults:         defaults,
		CleanupEmptyDirs: true,
	}, pipeline.Deps{
		Converter: pdf.NewConverter(s.Processing.RenderDPI, logger),
		Analyzer:  analyzer,
		Renderer:  renderer,
		Archiver:  archiver,
	}, logger, metrics)

	return &app{
		settings: s,
		logger:   logger,
		metrics:  metrics,
		archiver: archiver,
		pipeline: p,
	}, nil
}

// parseOptions turns override flags into options. Empty flags stay empty so
// the settings defaults apply.
func parseOptions(mode, thumbnail, pageMode string) (domain.Options, error) {
	m, err := domain.ParseMode(mode)
	if err != nil {
		return domain.Options{}, err
	}
	t, err := domain.ParseThumbnailSize(thumbnail)
	if err != nil {
		return domain.Options{}, err
	}
	pm, err := domain.ParsePageMode(pageMode)
	if err != nil {
		return domain.Options{}, err
	}
	return domain.Options{Mode: m, Thumbnail: t, PageMode: pm}, nil
}

// consumer receives outcomes from the worker until the channel closes or ctx
// is cancelled. It must call done for every outcome it takes.
type consumer func(ctx context.Context, results <-chan domain.Outcome, done func(domain.Outcome)) error

// supervise runs the watcher, a single pipeline worker, the outcome consumer
// and the optional metrics endpoint until ctx is cancelled or one of them
// fails.
func (a *app) supervise(ctx context.Context, processExisting bool, opts domain.Options, consume consumer) error {
	w := watcher.New(watcher.Config{
		Dir:             a.settings.Folders.Input,
		SettleDelay:     a.settings.SettleDelay(),
		RescanInterval:  a.settings.PollingInterval(),
		ProcessExisting: processExisting,
	}, a.logger, a.metrics)

	paths := make(chan string, 64)
	results := make(chan domain.Outcome, 64)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(paths)
		return w.Run(ctx, paths)
	})
	g.Go(func() error {
		defer close(results)
		return a.pipeline.Run(ctx, paths, results, opts)
	})
	g.Go(func() error {
		return consume(ctx, results, func(o domain.Outcome) { w.Done(o.Path) })
	})
	if addr := a.settings.Metrics.Addr; addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, addr, a.metrics, a.logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics exposes the health check and Prometheus registry until ctx is
// cancelled.
func serveMetrics(ctx context.Context, addr string, metrics *observability.Metrics, logger *observability.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.NewRouter(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return domain.IOError("metrics server failed", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
