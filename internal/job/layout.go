package job

import (
	"fmt"
	"os"
	"path/filepath"
)

// Fixed names inside a job root. Everything a job produces or consumes
// lives under its root so the whole job can be moved or deleted as one
// directory.
const (
	inputDirName     = "input"
	outputDirName    = "output"
	workDirName      = "work"
	fragmentsDirName = "markdown_items"
	queueFileName    = "queue.sqlite3"
	mergedFileName   = "output.md"
)

// Layout resolves the on-disk structure of one job root.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) InputDir() string  { return filepath.Join(l.Root, inputDirName) }
func (l Layout) OutputDir() string { return filepath.Join(l.Root, outputDirName) }
func (l Layout) WorkDir() string   { return filepath.Join(l.Root, outputDirName, workDirName) }
func (l Layout) FragmentsDir() string {
	return filepath.Join(l.Root, outputDirName, fragmentsDirName)
}
func (l Layout) QueuePath() string  { return filepath.Join(l.Root, queueFileName) }
func (l Layout) MergedPath() string { return filepath.Join(l.Root, mergedFileName) }

// FragmentPath is where the runner writes the Markdown for one task.
func (l Layout) FragmentPath(taskID int64) string {
	return filepath.Join(l.FragmentsDir(), fmt.Sprintf("task_%d.md", taskID))
}

// RenderedPagePath is the cached raster for one pdf_page task. A re-run
// of the same task reuses the file instead of rendering again.
func (l Layout) RenderedPagePath(taskID int64, pageIndex int) string {
	return filepath.Join(l.WorkDir(), fmt.Sprintf("pdf_%d_page_%d.png", taskID, pageIndex))
}

// Ensure creates the directory skeleton.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.InputDir(), l.WorkDir(), l.FragmentsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create job directory %s: %w", dir, err)
		}
	}
	return nil
}
