package store

import (
	"context"

	"github.com/feichai0017/ocr-agent/internal/models"
)

// TaskStore is the durable, ordered record of work items for one job root.
// It is single-writer (the active runner) and multi-reader (status, logs,
// preview); every state transition is one atomic row update.
type TaskStore interface {
	// Enqueue inserts the specs in order inside a single transaction and
	// returns the assigned ids, ascending. Ids of a later call are always
	// greater than those of an earlier one.
	Enqueue(ctx context.Context, specs []models.TaskSpec) ([]int64, error)
	// NextPending returns the lowest-id pending task, or nil when none.
	NextPending(ctx context.Context) (*models.Task, error)
	MarkRunning(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, outputPath string) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	// List returns tasks ordered by id; statuses filters when non-empty.
	List(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error)
	// StatusCounts returns the number of tasks per status.
	StatusCounts(ctx context.Context) (map[models.TaskStatus]int64, error)
	// LastErrorMessage returns the most recent failure message, or "".
	LastErrorMessage(ctx context.Context) (string, error)
	// DeleteAllTasks removes every row and returns how many were deleted.
	DeleteAllTasks(ctx context.Context) (int64, error)
	Close() error
}
