// Package watch re-annotates circuit files when they change on disk.
//
// Each changed `*.stim` file is annotated and the result is written next to
// it, with the `.stim` extension replaced by the configured output suffix.
// Re-runs are rate limited so that editors saving in bursts do not trigger a
// SAT search per write.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/detectd/internal/config"
	"github.com/fyrsmithlabs/detectd/internal/detect"
	"github.com/fyrsmithlabs/detectd/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// CircuitExt is the extension of the files the watcher reacts to.
const CircuitExt = ".stim"

// Result reports one re-annotation.
type Result struct {
	Path      string
	Output    string
	Detectors int
	Elapsed   time.Duration
	Err       error
}

// Watcher watches files and directories for circuit changes.
type Watcher struct {
	svc     *detect.Service
	logger  *logging.Logger
	watcher *fsnotify.Watcher
	limiter *rate.Limiter
	suffix  string
	results chan Result
	stop    chan struct{}
}

// New creates a watcher. Nothing is watched until Add is called.
func New(svc *detect.Service, logger *logging.Logger, cfg config.WatchConfig) (*Watcher, error) {
	if svc == nil {
		return nil, fmt.Errorf("detect service cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MinInterval <= 0 || cfg.OutputSuffix == "" {
		return nil, fmt.Errorf("watch config requires a positive min_interval and an output_suffix")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		svc:     svc,
		logger:  logger,
		watcher: fw,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		suffix:  cfg.OutputSuffix,
		results: make(chan Result, 16),
		stop:    make(chan struct{}),
	}, nil
}

// Add watches a file or a directory. Watching a directory covers the
// circuit files directly inside it.
func (w *Watcher) Add(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	if err := w.watcher.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	return nil
}

// Results delivers one Result per re-annotation. It is closed when Run
// returns.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Run processes filesystem events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.results)
	for {
		select {
		case <-w.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.isCircuit(event.Name) {
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}
			res := w.Process(ctx, event.Name)
			select {
			case w.results <- res:
			case <-ctx.Done():
				return ctx.Err()
			case <-w.stop:
				return nil
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "filesystem watcher error", zap.Error(err))
		}
	}
}

// Close stops Run and releases the underlying watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.stop:
		return nil
	default:
		close(w.stop)
		return w.watcher.Close()
	}
}

// OutputPath is where the annotation of path is written.
func (w *Watcher) OutputPath(path string) string {
	return strings.TrimSuffix(path, CircuitExt) + w.suffix
}

func (w *Watcher) isCircuit(path string) bool {
	return filepath.Ext(path) == CircuitExt && !strings.HasSuffix(path, w.suffix)
}

// Process annotates one file and writes the output.
func (w *Watcher) Process(ctx context.Context, path string) (res Result) {
	ctx = logging.WithSource(ctx, path)
	res = Result{Path: path, Output: w.OutputPath(path)}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	f, err := os.Open(path)
	if err != nil {
		res.Err = fmt.Errorf("opening circuit: %w", err)
		return res
	}
	defer f.Close()

	c, err := w.svc.Parse(ctx, f)
	if err != nil {
		res.Err = err
		return res
	}
	out, err := w.svc.Annotate(ctx, c)
	if err != nil {
		res.Err = err
		return res
	}
	res.Detectors = len(out.Detectors)

	if err := writeFileAtomic(res.Output, []byte(out.Circuit.String()+"\n")); err != nil {
		res.Err = err
		return res
	}
	w.logger.Info(ctx, "annotated circuit written",
		zap.String("output", res.Output),
		zap.Int("detectors", res.Detectors),
	)
	return res
}

// writeFileAtomic writes through a temporary file in the same directory so
// readers never see a partial annotation.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".detectd-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
