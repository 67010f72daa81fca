// Package watcher reports new image and document files dropped into the input
// folder.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spherical/screenshot-wizard/internal/classify"
	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

// Config holds watcher settings
type Config struct {
	Dir string
	// SettleDelay is how long a path must stay quiet before it is dispatched.
	SettleDelay time.Duration
	// RescanInterval is the period of the fallback directory scan that catches
	// missed events. Zero disables it.
	RescanInterval time.Duration
	// ProcessExisting submits files already present before watching starts.
	ProcessExisting bool
}

// Watcher turns filesystem events into a de-duplicated stream of paths.
// A dispatched path is not sent again until the consumer calls Done.
type Watcher struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	pending  map[string]struct{}    // dispatched, not yet Done
	settling map[string]*time.Timer // waiting for the settle delay
	seen     map[string]time.Time   // modtime at dispatch, used by rescans
}

// New creates a watcher for cfg.Dir
func New(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Watcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Watcher{
		cfg:      cfg,
		logger:   logger.WithComponent("watcher"),
		metrics:  metrics,
		pending:  make(map[string]struct{}),
		settling: make(map[string]*time.Timer),
		seen:     make(map[string]time.Time),
	}
}

// Run watches the folder and sends qualifying paths to out in discovery
// order until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, out chan<- string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return domain.IOError("failed to create file watcher", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return domain.IOError("failed to watch "+w.cfg.Dir, err)
	}

	ready := make(chan string, 64)
	defer w.stopTimers()

	if w.cfg.ProcessExisting {
		if err := w.sweep(ctx, out); err != nil {
			return err
		}
	}

	var rescan <-chan time.Time
	if w.cfg.RescanInterval > 0 {
		ticker := time.NewTicker(w.cfg.RescanInterval)
		defer ticker.Stop()
		rescan = ticker.C
	}

	w.logger.Info().Str("dir", w.cfg.Dir).Dur("settle_delay", w.cfg.SettleDelay).Msg("Watching for new files")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Watcher stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if qualifies(ev) {
				w.schedule(ctx, ev.Name, ready)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")

		case path := <-ready:
			if err := w.dispatch(ctx, path, out); err != nil {
				return nil
			}

		case <-rescan:
			w.rescan(ctx, ready)
		}
	}
}

// qualifies reports whether ev may announce a new input file. Dotfiles are
// skipped like in directory listings.
func qualifies(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return classify.Kind(ev.Name) != domain.KindRejected
}

// Done marks path as handled so a later event for the same name can be
// dispatched again.
func (w *Watcher) Done(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	depth := len(w.pending)
	w.mu.Unlock()
	w.metrics.SetQueueDepth(depth)
}

// Pending returns the number of dispatched paths not yet marked Done.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// schedule (re)starts the settle timer for path. Repeated events for a file
// still being written keep pushing its dispatch back.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, busy := w.pending[path]; busy {
		return
	}
	if t, ok := w.settling[path]; ok {
		t.Reset(w.cfg.SettleDelay)
		return
	}
	w.settling[path] = time.AfterFunc(w.cfg.SettleDelay, func() {
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

// dispatch re-checks a settled path and sends it. It returns an error only
// when ctx is cancelled.
func (w *Watcher) dispatch(ctx context.Context, path string, out chan<- string) error {
	w.mu.Lock()
	delete(w.settling, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		w.logger.Debug().Str("file", filepath.Base(path)).Msg("Path vanished before dispatch")
		return nil
	}
	return w.submit(ctx, path, info.ModTime(), out)
}

func (w *Watcher) submit(ctx context.Context, path string, modTime time.Time, out chan<- string) error {
	w.mu.Lock()
	if _, busy := w.pending[path]; busy {
		w.mu.Unlock()
		return nil
	}
	w.pending[path] = struct{}{}
	w.seen[path] = modTime
	depth := len(w.pending)
	w.mu.Unlock()
	w.metrics.SetQueueDepth(depth)

	w.logger.Info().Str("file", filepath.Base(path)).Msg("New file detected")

	select {
	case out <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweep submits every candidate already in the folder, oldest first.
func (w *Watcher) sweep(ctx context.Context, out chan<- string) error {
	listing, err := classify.ListCandidates(w.cfg.Dir)
	if err != nil {
		return err
	}
	w.logger.Info().Int("files", len(listing.Candidates)).Int("rejected", len(listing.Rejected)).
		Msg("Processing existing files")

	for _, c := range listing.Candidates {
		info, err := os.Stat(c.Path)
		if err != nil {
			continue
		}
		if err := w.submit(ctx, c.Path, info.ModTime(), out); err != nil {
			return nil
		}
	}
	return nil
}

// rescan schedules candidates that were never dispatched or changed since.
// A file that failed and was left untouched is not picked up again.
func (w *Watcher) rescan(ctx context.Context, ready chan<- string) {
	listing, err := classify.ListCandidates(w.cfg.Dir)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Rescan failed")
		return
	}

	present := make(map[string]struct{}, len(listing.Candidates))
	for _, c := range listing.Candidates {
		present[c.Path] = struct{}{}
		info, err := os.Stat(c.Path)
		if err != nil {
			continue
		}

		w.mu.Lock()
		last, known := w.seen[c.Path]
		_, settling := w.settling[c.Path]
		w.mu.Unlock()

		if settling || (known && last.Equal(info.ModTime())) {
			continue
		}
		w.logger.Debug().Str("file", filepath.Base(c.Path)).Msg("Rescan found file")
		w.schedule(ctx, c.Path, ready)
	}

	w.mu.Lock()
	for path := range w.seen {
		if _, ok := present[path]; !ok {
			delete(w.seen, path)
		}
	}
	w.mu.Unlock()
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.settling {
		t.Stop()
		delete(w.settling, path)
	}
}
