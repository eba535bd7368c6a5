package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/ocr-agent/internal/models"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

const documentTitle = "# OCR Output"

// Options controls the merge pass.
type Options struct {
	// Normalize applies NormalizeFragment to each fragment before
	// concatenation. A normalization failure falls back to the raw
	// fragment and never excludes it.
	Normalize bool
}

// Summary reports what the merge included and what is missing.
type Summary struct {
	Included int
	Failed   int
	Skipped  int // completed tasks whose fragment file was unreadable
}

// Tasks concatenates the fragments of completed tasks, in ascending id
// order, into one document at outputPath. The output is a pure function
// of the current task set: every call rewrites the file from scratch, so
// re-merging after a retry never appends duplicates.
func Tasks(tasks []models.Task, outputPath string, opts Options, log logger.Logger) (Summary, error) {
	var summary Summary
	var b strings.Builder
	b.WriteString(documentTitle)
	b.WriteString("\n\n")

	for _, task := range tasks {
		if task.Status == models.StatusFailed {
			summary.Failed++
			continue
		}
		if task.Status != models.StatusCompleted || task.OutputPath == "" {
			continue
		}

		fragment, err := os.ReadFile(task.OutputPath)
		if err != nil {
			summary.Skipped++
			log.Warn("skipping unreadable fragment",
				logger.Int64("taskId", task.ID),
				logger.String("path", task.OutputPath),
				logger.Error(err),
			)
			continue
		}

		text := string(fragment)
		if strings.TrimSpace(text) == "" {
			continue
		}

		if opts.Normalize {
			normalized, err := NormalizeFragment(text)
			if err != nil {
				log.Warn("fragment normalization failed, using raw text",
					logger.Int64("taskId", task.ID),
					logger.Error(err),
				)
			} else {
				text = normalized
			}
		}

		b.WriteString(taskHeader(task))
		b.WriteString("\n\n")
		b.WriteString(text)
		b.WriteString("\n\n---\n\n")
		summary.Included++
	}

	content := strings.TrimRight(b.String(), " \t\n") + "\n"
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return summary, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return summary, fmt.Errorf("failed to write merged document: %w", err)
	}

	return summary, nil
}

// taskHeader labels each fragment with its source so a reader can map
// document sections back to input files.
func taskHeader(task models.Task) string {
	if task.Kind == models.KindPDFPage && task.PageCount > 0 {
		return fmt.Sprintf("## %s (page %d/%d)", task.SourcePath, task.PageIndex+1, task.PageCount)
	}
	return fmt.Sprintf("## %s", task.SourcePath)
}
