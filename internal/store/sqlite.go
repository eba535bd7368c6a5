package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/feichai0017/ocr-agent/internal/models"
)

// SQLiteStore implements TaskStore on a single database file kept inside
// the job root. WAL mode lets status pollers read while the runner writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the queue database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", models.ErrStoreUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", models.ErrStoreUnavailable, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", models.ErrStoreUnavailable, err)
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		task_id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		source_path TEXT NOT NULL,
		page_index INTEGER,
		page_count INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		output_path TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Enqueue inserts all specs in one transaction so a PDF's pages form a
// contiguous id block that concurrent enqueuers cannot interleave.
func (s *SQLiteStore) Enqueue(ctx context.Context, specs []models.TaskSpec) ([]int64, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", models.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tasks (kind, source_path, page_index, page_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	now := time.Now().Unix()
	ids := make([]int64, 0, len(specs))
	for _, spec := range specs {
		var pageIndex, pageCount interface{}
		if spec.Kind == models.KindPDFPage {
			pageIndex = spec.PageIndex
			pageCount = spec.PageCount
		}

		res, err := tx.ExecContext(ctx, query,
			spec.Kind,
			spec.SourcePath,
			pageIndex,
			pageCount,
			models.StatusPending,
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to insert task: %v", models.ErrStoreUnavailable, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read inserted id: %v", models.ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit transaction: %v", models.ErrStoreUnavailable, err)
	}

	return ids, nil
}

const taskColumns = `task_id, kind, source_path, page_index, page_count, status,
	attempt_count, error_message, output_path, created_at, started_at, completed_at`

// NextPending returns the lowest-id pending task. This is what makes merge
// order deterministic without a separate sort at merge time.
func (s *SQLiteStore) NextPending(ctx context.Context) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = ?
		ORDER BY task_id ASC
		LIMIT 1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, models.StatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to fetch next pending task: %v", models.ErrStoreUnavailable, err)
	}
	return task, nil
}

// MarkRunning records the transition and the start timestamp used for ETA.
// Only a pending task may start running.
func (s *SQLiteStore) MarkRunning(ctx context.Context, id int64) error {
	query := `
		UPDATE tasks
		SET status = ?, attempt_count = attempt_count + 1, started_at = ?
		WHERE task_id = ? AND status = ?
	`
	return s.transition(ctx, id, models.StatusRunning, query,
		models.StatusRunning, time.Now().Unix(), id, models.StatusPending)
}

// MarkCompleted records the output fragment path and clears any prior error.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, id int64, outputPath string) error {
	query := `
		UPDATE tasks
		SET status = ?, output_path = ?, error_message = NULL, completed_at = ?
		WHERE task_id = ? AND status = ?
	`
	return s.transition(ctx, id, models.StatusCompleted, query,
		models.StatusCompleted, outputPath, time.Now().Unix(), id, models.StatusRunning)
}

// MarkFailed records the failure message for operator visibility.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE tasks
		SET status = ?, error_message = ?, completed_at = ?
		WHERE task_id = ? AND status = ?
	`
	return s.transition(ctx, id, models.StatusFailed, query,
		models.StatusFailed, errorMessage, time.Now().Unix(), id, models.StatusRunning)
}

// List returns tasks in ascending id order, optionally filtered by status.
func (s *SQLiteStore) List(ctx context.Context, statuses ...models.TaskStatus) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + repeatPlaceholder(len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY task_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query tasks: %v", models.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan task: %v", models.ErrStoreUnavailable, err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate tasks: %v", models.ErrStoreUnavailable, err)
	}

	return tasks, nil
}

// StatusCounts aggregates task counts per status.
func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[models.TaskStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count tasks: %v", models.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int64)
	for rows.Next() {
		var status models.TaskStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("%w: failed to scan count: %v", models.ErrStoreUnavailable, err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate counts: %v", models.ErrStoreUnavailable, err)
	}

	return counts, nil
}

// LastErrorMessage returns the most recent task failure message, or "".
func (s *SQLiteStore) LastErrorMessage(ctx context.Context) (string, error) {
	query := `
		SELECT error_message FROM tasks
		WHERE status = ? AND error_message IS NOT NULL
		ORDER BY task_id DESC
		LIMIT 1
	`

	var message string
	err := s.db.QueryRowContext(ctx, query, models.StatusFailed).Scan(&message)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("%w: failed to query last error: %v", models.ErrStoreUnavailable, err)
	}
	return message, nil
}

// DeleteAllTasks clears the queue. Only an explicit reset calls this.
func (s *SQLiteStore) DeleteAllTasks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete tasks: %v", models.ErrStoreUnavailable, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read deleted count: %v", models.ErrStoreUnavailable, err)
	}
	return deleted, nil
}

// transition runs a guarded status update and verifies that exactly one
// row changed. Zero rows means the id does not exist or the task is not
// in the required prior status; completed and failed rows never move.
func (s *SQLiteStore) transition(ctx context.Context, id int64, to models.TaskStatus, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update task: %v", models.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to read affected rows: %v", models.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d cannot transition to %s: no matching row", id, to)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var pageIndex, pageCount sql.NullInt64
	var errorMessage, outputPath sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.SourcePath,
		&pageIndex,
		&pageCount,
		&task.Status,
		&task.AttemptCount,
		&errorMessage,
		&outputPath,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if pageIndex.Valid {
		task.PageIndex = int(pageIndex.Int64)
	}
	if pageCount.Valid {
		task.PageCount = int(pageCount.Int64)
	}
	task.ErrorMessage = errorMessage.String
	task.OutputPath = outputPath.String
	task.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		task.CompletedAt = &t
	}

	return &task, nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
