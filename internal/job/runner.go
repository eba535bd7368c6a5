package job

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/feichai0017/ocr-agent/internal/engine"
	"github.com/feichai0017/ocr-agent/internal/merge"
	"github.com/feichai0017/ocr-agent/internal/models"
	"github.com/feichai0017/ocr-agent/internal/render"
	"github.com/feichai0017/ocr-agent/internal/store"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

// RunOptions tunes one run of the pipeline.
type RunOptions struct {
	// FailFast stops the loop after the first failed task instead of
	// continuing with the remaining pending ones.
	FailFast bool
	// Normalize applies the fragment normalization pass at merge time.
	Normalize bool
	// EngineTimeout caps each recognition call. Zero leaves the engine's
	// own timeout in charge.
	EngineTimeout time.Duration
}

// Runner drains the pending tasks of one job root, strictly serially and
// in id order. The OCR engine binds a non-shareable accelerator, so there
// is never more than one recognition in flight.
type Runner struct {
	layout   Layout
	store    store.TaskStore
	engine   engine.Engine
	renderer render.PageRenderer
	log      logger.Logger
	opts     RunOptions

	cancelled atomic.Bool
}

func NewRunner(layout Layout, st store.TaskStore, eng engine.Engine, renderer render.PageRenderer, opts RunOptions, log logger.Logger) *Runner {
	return &Runner{
		layout:   layout,
		store:    st,
		engine:   eng,
		renderer: renderer,
		log:      log,
		opts:     opts,
	}
}

// Cancel requests a stop. Advisory: the runner checks the flag between
// tasks only, never mid-recognition.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

// Run processes pending tasks until the queue drains, cancellation is
// observed, or the store fails. Task-level engine errors are recorded on
// the row and never abort the loop; store errors do. The merge pass runs
// on every exit path that leaves the store reachable.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.layout.Ensure(); err != nil {
		return err
	}

	// Only the per-task work observes ctx. Store transitions and the
	// final merge run detached: a cancelled run must still record its
	// last task and merge the completed work instead of surfacing the
	// cancellation as a store failure.
	storeCtx := context.WithoutCancel(ctx)

	for {
		if r.cancelled.Load() || ctx.Err() != nil {
			r.log.Info("run cancelled, stopping before next task")
			break
		}

		task, err := r.store.NextPending(storeCtx)
		if err != nil {
			return err
		}
		if task == nil {
			break
		}

		if err := r.runTask(ctx, storeCtx, task); err != nil {
			return err
		}
		if r.opts.FailFast {
			if failed, err := r.taskFailed(storeCtx, task.ID); err != nil {
				return err
			} else if failed {
				r.log.Warn("stopping after first failure", logger.Int64("taskId", task.ID))
				break
			}
		}
	}

	return r.mergeOutputs(storeCtx)
}

// runTask executes one task end to end. The returned error is only
// non-nil for store failures; engine and I/O failures are absorbed into
// the task row.
func (r *Runner) runTask(ctx, storeCtx context.Context, task *models.Task) error {
	if err := r.store.MarkRunning(storeCtx, task.ID); err != nil {
		return err
	}
	log := r.log.With(
		logger.Int64("taskId", task.ID),
		logger.String("source", task.SourcePath),
	)
	log.Info("task started", logger.String("kind", string(task.Kind)))
	startedAt := time.Now()

	text, err := r.recognize(ctx, task)
	if err != nil {
		log.Warn("task failed", logger.Error(err))
		return r.store.MarkFailed(storeCtx, task.ID, err.Error())
	}

	fragmentPath := r.layout.FragmentPath(task.ID)
	if err := os.WriteFile(fragmentPath, []byte(text), 0o644); err != nil {
		log.Warn("task failed", logger.Error(err))
		return r.store.MarkFailed(storeCtx, task.ID, fmt.Sprintf("failed to write fragment: %v", err))
	}

	if err := r.store.MarkCompleted(storeCtx, task.ID, fragmentPath); err != nil {
		return err
	}
	log.Info("task completed", logger.Duration("took", time.Since(startedAt)))
	return nil
}

func (r *Runner) recognize(ctx context.Context, task *models.Task) (string, error) {
	imagePath, err := r.resolveImagePath(ctx, task)
	if err != nil {
		return "", err
	}

	if r.opts.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.EngineTimeout)
		defer cancel()
	}
	return r.engine.RecognizeImage(ctx, imagePath)
}

// resolveImagePath maps a task to the image the engine should read. For
// pdf_page tasks the rendered raster is cached in the work directory, so
// a re-run of the same task skips the render.
func (r *Runner) resolveImagePath(ctx context.Context, task *models.Task) (string, error) {
	if task.Kind != models.KindPDFPage {
		return task.SourcePath, nil
	}

	rendered := r.layout.RenderedPagePath(task.ID, task.PageIndex)
	if _, err := os.Stat(rendered); err == nil {
		return rendered, nil
	}
	if err := r.renderer.RenderPage(ctx, task.SourcePath, task.PageIndex, rendered); err != nil {
		return "", fmt.Errorf("failed to render page %d of %s: %w", task.PageIndex+1, task.SourcePath, err)
	}
	return rendered, nil
}

func (r *Runner) taskFailed(ctx context.Context, id int64) (bool, error) {
	tasks, err := r.store.List(ctx, models.StatusFailed)
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *Runner) mergeOutputs(ctx context.Context) error {
	tasks, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	summary, err := merge.Tasks(tasks, r.layout.MergedPath(), merge.Options{Normalize: r.opts.Normalize}, r.log)
	if err != nil {
		return err
	}
	r.log.Info("merged document written",
		logger.String("path", r.layout.MergedPath()),
		logger.Int("included", summary.Included),
		logger.Int("failed", summary.Failed),
		logger.Int("skipped", summary.Skipped),
	)
	return nil
}
