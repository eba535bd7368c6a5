package job

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/jobs/job-1")
	assert.Equal(t, "/jobs/job-1/input", l.InputDir())
	assert.Equal(t, "/jobs/job-1/output/work", l.WorkDir())
	assert.Equal(t, "/jobs/job-1/output/markdown_items", l.FragmentsDir())
	assert.Equal(t, "/jobs/job-1/queue.sqlite3", l.QueuePath())
	assert.Equal(t, "/jobs/job-1/output.md", l.MergedPath())
	assert.Equal(t, "/jobs/job-1/output/markdown_items/task_7.md", l.FragmentPath(7))
	assert.Equal(t, "/jobs/job-1/output/work/pdf_7_page_2.png", l.RenderedPagePath(7, 2))
}

func TestLayoutEnsureCreatesSkeleton(t *testing.T) {
	l := NewLayout(filepath.Join(t.TempDir(), "job"))
	require.NoError(t, l.Ensure())
	for _, dir := range []string{l.InputDir(), l.WorkDir(), l.FragmentsDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my_scan__1_.png", sanitizeFilename("/tmp/my scan (1).png"))
	assert.Equal(t, "doc.pdf", sanitizeFilename("doc.pdf"))
	assert.Equal(t, "input", sanitizeFilename(".."))
}

func TestAddInputsResolvesNameCollisions(t *testing.T) {
	layout := NewLayout(t.TempDir())

	srcA := filepath.Join(t.TempDir(), "scan.png")
	srcB := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(srcA, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(srcB, []byte("b"), 0o644))

	dests, err := AddInputs(layout, []string{srcA, srcB})
	require.NoError(t, err)
	require.Len(t, dests, 2)
	assert.Equal(t, filepath.Join(layout.InputDir(), "scan.png"), dests[0])
	assert.Equal(t, filepath.Join(layout.InputDir(), "scan_1.png"), dests[1])

	b, err := os.ReadFile(dests[1])
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestAddInputsMissingSourceFails(t *testing.T) {
	layout := NewLayout(t.TempDir())
	_, err := AddInputs(layout, []string{filepath.Join(t.TempDir(), "missing.png")})
	assert.Error(t, err)
}
