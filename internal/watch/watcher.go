package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/ocr-agent/internal/job"
	"github.com/feichai0017/ocr-agent/internal/models"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

// Watcher polls an inbox directory for completed bundles and turns each
// one into a job under the jobs root, via the same enqueue/run path a
// manually started job takes. Multiple watcher processes may poll the
// same inbox; the exclusive .processing claim keeps a bundle from being
// ingested twice.
type Watcher struct {
	mfs     markerFS
	manager *job.Manager
	opts    job.RunOptions
	poll    time.Duration
	log     logger.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	inboxRoot string
	jobsRoot  string
	lastError string
}

func NewWatcher(manager *job.Manager, poll time.Duration, opts job.RunOptions, log logger.Logger) *Watcher {
	return &Watcher{
		mfs:     osMarkerFS{},
		manager: manager,
		opts:    opts,
		poll:    poll,
		log:     log,
	}
}

// Start launches the poll loop. jobsRoot defaults to a "jobs" sibling
// directory inside the inbox's parent when empty.
func (w *Watcher) Start(inboxRoot, jobsRoot string) error {
	info, err := os.Stat(inboxRoot)
	if err != nil {
		return fmt.Errorf("inbox root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inbox root %s is not a directory", inboxRoot)
	}
	if jobsRoot == "" {
		jobsRoot = filepath.Join(filepath.Dir(filepath.Clean(inboxRoot)), "jobs")
	}
	if err := os.MkdirAll(jobsRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create jobs root: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("watch already running on %s", w.inboxRoot)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.inboxRoot = inboxRoot
	w.jobsRoot = jobsRoot
	w.lastError = ""

	w.log.Info("watch started",
		logger.String("inboxRoot", inboxRoot),
		logger.String("jobsRoot", jobsRoot),
	)
	go w.loop(ctx)
	return nil
}

// Stop halts the poll loop and waits for the current iteration,
// including any in-flight job run, to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	w.mu.Lock()
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()
	w.log.Info("watch stopped")
}

// Status reports the loop state for the watch_status query.
func (w *Watcher) Status() models.WatchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return models.WatchStatus{
		Running:   w.cancel != nil,
		InboxRoot: w.inboxRoot,
		JobsRoot:  w.jobsRoot,
		LastError: w.lastError,
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		w.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce scans the inbox and ingests every Ready bundle it can claim.
// Bundle order within one scan is directory-listing order; no ordering
// is promised across bundles.
func (w *Watcher) pollOnce(ctx context.Context) {
	entries, err := os.ReadDir(w.inboxRoot)
	if err != nil {
		w.setLastError(fmt.Sprintf("failed to list inbox: %v", err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.IsDir() {
			continue
		}
		bundleDir := filepath.Join(w.inboxRoot, entry.Name())
		if err := w.processBundle(ctx, bundleDir); err != nil {
			if errors.Is(err, models.ErrBundleClaimConflict) {
				continue
			}
			w.setLastError(fmt.Sprintf("bundle %s: %v", entry.Name(), err))
		}
	}
}

// processBundle ingests one bundle: claim, copy, enqueue, run, mark.
// Failures after the claim are recorded in the .failed marker so the
// producer can see what happened; the loop then moves on.
func (w *Watcher) processBundle(ctx context.Context, bundleDir string) error {
	state, err := bundleState(w.mfs, bundleDir)
	if err != nil {
		return err
	}
	if state != StateReady {
		return nil
	}

	if err := claimBundle(w.mfs, bundleDir); err != nil {
		return err
	}

	// Once claimed, the bundle runs to its terminal marker regardless of
	// the poll loop's lifetime. Stop only cancels between bundles; a
	// cancelled ctx here would abort the run mid-task and write .failed
	// for a perfectly good bundle.
	ctx = context.WithoutCancel(ctx)

	bundleName := filepath.Base(bundleDir)
	jobRoot := filepath.Join(w.jobsRoot, fmt.Sprintf("job-%s-%s", uuid.NewString(), bundleName))
	log := w.log.With(
		logger.String("bundle", bundleName),
		logger.String("jobRoot", jobRoot),
	)
	log.Info("bundle claimed")

	if err := w.ingest(ctx, bundleDir, jobRoot); err != nil {
		log.Error("bundle ingestion failed", logger.Error(err))
		w.markFailed(bundleDir, err.Error())
		return err
	}

	status, err := w.manager.Status(ctx, jobRoot)
	if err == nil && status.Failed > 0 {
		msg := fmt.Sprintf("%d task(s) failed: %s", status.Failed, status.LastError)
		log.Warn("bundle processed with failures", logger.String("detail", msg))
		w.markFailed(bundleDir, msg)
		return nil
	}

	w.markProcessed(bundleDir)
	log.Info("bundle processed")
	return nil
}

// ingest copies the bundle's content files into a fresh job root, then
// enqueues and runs them. The original bundle files are left untouched.
func (w *Watcher) ingest(ctx context.Context, bundleDir, jobRoot string) error {
	files, err := bundleFiles(bundleDir)
	if err != nil {
		return fmt.Errorf("failed to list bundle contents: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("bundle contains no files")
	}

	layout := job.NewLayout(jobRoot)
	if _, err := job.AddInputs(layout, files); err != nil {
		return fmt.Errorf("failed to copy bundle contents: %w", err)
	}

	if _, _, err := w.manager.Enqueue(ctx, jobRoot, []string{layout.InputDir()}); err != nil {
		return err
	}
	return w.manager.RunSync(ctx, jobRoot, w.opts)
}

// bundleFiles lists the content files of a bundle, recursively, skipping
// the marker files and anything else dot-prefixed.
func bundleFiles(bundleDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(bundleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != bundleDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (w *Watcher) markProcessed(bundleDir string) {
	w.replaceProcessingMarker(bundleDir, markerProcessed, nil)
}

func (w *Watcher) markFailed(bundleDir string, message string) {
	w.replaceProcessingMarker(bundleDir, markerFailed, []byte(message+"\n"))
}

func (w *Watcher) replaceProcessingMarker(bundleDir, marker string, body []byte) {
	if err := w.mfs.WriteFile(filepath.Join(bundleDir, marker), body); err != nil {
		w.setLastError(fmt.Sprintf("failed to write %s marker: %v", marker, err))
		return
	}
	if err := w.mfs.Remove(filepath.Join(bundleDir, markerProcessing)); err != nil {
		w.setLastError(fmt.Sprintf("failed to remove %s marker: %v", markerProcessing, err))
	}
}

func (w *Watcher) setLastError(msg string) {
	w.mu.Lock()
	w.lastError = msg
	w.mu.Unlock()
	w.log.Error("watch error", logger.String("detail", msg))
}
