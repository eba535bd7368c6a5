package job

import (
	"context"
	"time"

	"github.com/feichai0017/ocr-agent/internal/models"
	"github.com/feichai0017/ocr-agent/internal/store"
)

// snapshot derives the aggregate job status from the queue store. The
// run-state fields (IsRunning, StartedAt) are filled in by the manager.
func snapshot(ctx context.Context, layout Layout, st store.TaskStore) (*models.JobStatus, error) {
	counts, err := st.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	lastError, err := st.LastErrorMessage(ctx)
	if err != nil {
		return nil, err
	}

	status := &models.JobStatus{
		JobRoot:   layout.Root,
		Pending:   counts[models.StatusPending],
		Running:   counts[models.StatusRunning],
		Completed: counts[models.StatusCompleted],
		Failed:    counts[models.StatusFailed],
		LastError: lastError,
	}
	status.Total = status.Pending + status.Running + status.Completed + status.Failed

	eta, err := estimateETA(ctx, st, status.Pending)
	if err != nil {
		return nil, err
	}
	status.ETASeconds = eta
	return status, nil
}

// estimateETA returns mean completed-task duration times the pending
// count. Nil until the first completion: reporting zero would imply a
// precision that does not exist yet. The running task's partial elapsed
// time is ignored; per-task variance dominates anyway.
func estimateETA(ctx context.Context, st store.TaskStore, pending int64) (*int64, error) {
	completed, err := st.List(ctx, models.StatusCompleted)
	if err != nil {
		return nil, err
	}

	var total time.Duration
	var n int64
	for _, t := range completed {
		if t.StartedAt == nil || t.CompletedAt == nil {
			continue
		}
		total += t.CompletedAt.Sub(*t.StartedAt)
		n++
	}
	if n == 0 {
		return nil, nil
	}

	avg := total / time.Duration(n)
	eta := int64((avg * time.Duration(pending)).Seconds())
	return &eta, nil
}
