package models

import (
	"time"
)

// TaskKind tells the runner how to obtain the image for a task.
type TaskKind string

const (
	KindImage   TaskKind = "image"
	KindPDFPage TaskKind = "pdf_page"
)

// TaskStatus is the lifecycle state of one queued unit of OCR work.
// Transitions are pending -> running -> completed|failed; nothing leaves
// a terminal state except a full reset.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task is one unit of OCR work: a single image, or a single PDF page.
// ID is assigned by the queue store at insertion time and is the sole
// ordering signal for both processing and merge.
type Task struct {
	ID           int64      `json:"id"`
	Kind         TaskKind   `json:"kind"`
	SourcePath   string     `json:"sourcePath"`
	PageIndex    int        `json:"pageIndex"` // zero-based, pdf_page only
	PageCount    int        `json:"pageCount"` // total pages of the source PDF
	Status       TaskStatus `json:"status"`
	AttemptCount int        `json:"attemptCount"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	OutputPath   string     `json:"outputPath,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// TaskSpec describes a task before it has been assigned an id.
// The decomposer produces ordered slices of these.
type TaskSpec struct {
	Kind       TaskKind
	SourcePath string
	PageIndex  int
	PageCount  int
}

// JobStatus is the aggregate snapshot for one job root, derived from the
// task set plus the runner's in-memory run state.
type JobStatus struct {
	JobRoot    string `json:"jobRoot"`
	IsRunning  bool   `json:"isRunning"`
	StartedAt  *int64 `json:"startedAtUnixMillis,omitempty"`
	Total      int64  `json:"total"`
	Pending    int64  `json:"pending"`
	Running    int64  `json:"running"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	LastError  string `json:"lastError,omitempty"`
	ETASeconds *int64 `json:"etaSeconds,omitempty"`
}

// WatchStatus reports the watch-folder loop state.
type WatchStatus struct {
	Running   bool   `json:"running"`
	InboxRoot string `json:"inboxRoot,omitempty"`
	JobsRoot  string `json:"jobsRoot,omitempty"`
	LastError string `json:"lastError,omitempty"`
}
