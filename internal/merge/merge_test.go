package merge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ocr-agent/internal/models"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

func writeFragment(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMergeOrdersByIDAndOmitsFailed(t *testing.T) {
	dir := t.TempDir()
	frag1 := writeFragment(t, dir, "task_1.md", "first page")
	frag3 := writeFragment(t, dir, "task_3.md", "third page")
	out := filepath.Join(dir, "output.md")

	tasks := []models.Task{
		{ID: 1, Kind: models.KindImage, SourcePath: "/in/a.png", Status: models.StatusCompleted, OutputPath: frag1},
		{ID: 2, Kind: models.KindImage, SourcePath: "/in/b.png", Status: models.StatusFailed, ErrorMessage: "boom"},
		{ID: 3, Kind: models.KindImage, SourcePath: "/in/c.png", Status: models.StatusCompleted, OutputPath: frag3},
	}

	summary, err := Tasks(tasks, out, Options{}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Included)
	assert.Equal(t, 1, summary.Failed)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "first page")
	assert.Contains(t, text, "third page")
	assert.NotContains(t, text, "boom")
	assert.NotContains(t, text, "/in/b.png")
	assert.Less(t, strings.Index(text, "first page"), strings.Index(text, "third page"))
}

func TestMergeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	frag := writeFragment(t, dir, "task_1.md", "only page")
	out := filepath.Join(dir, "output.md")

	tasks := []models.Task{
		{ID: 1, Kind: models.KindImage, SourcePath: "/in/a.png", Status: models.StatusCompleted, OutputPath: frag},
	}

	_, err := Tasks(tasks, out, Options{}, logger.NewTestLogger())
	require.NoError(t, err)
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	_, err = Tasks(tasks, out, Options{}, logger.NewTestLogger())
	require.NoError(t, err)
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMergePDFPageHeader(t *testing.T) {
	dir := t.TempDir()
	frag := writeFragment(t, dir, "task_1.md", "page text")
	out := filepath.Join(dir, "output.md")

	tasks := []models.Task{
		{ID: 1, Kind: models.KindPDFPage, SourcePath: "/in/doc.pdf", PageIndex: 1, PageCount: 3, Status: models.StatusCompleted, OutputPath: frag},
	}

	_, err := Tasks(tasks, out, Options{}, logger.NewTestLogger())
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "## /in/doc.pdf (page 2/3)")
}

func TestMergeSkipsUnreadableFragment(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "output.md")

	tasks := []models.Task{
		{ID: 1, Kind: models.KindImage, SourcePath: "/in/a.png", Status: models.StatusCompleted, OutputPath: filepath.Join(dir, "gone.md")},
	}

	log := logger.NewTestLogger()
	summary, err := Tasks(tasks, out, Options{}, log)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Included)
	assert.Equal(t, 1, summary.Skipped)
	assert.NotEmpty(t, log.GetEntries())
}

func TestNormalizeFragmentMathDelimiters(t *testing.T) {
	got, err := NormalizeFragment(`Euler: \(e^{i\pi}+1=0\) and \[ \int_0^1 x\,dx = \tfrac12 \]`)
	require.NoError(t, err)
	assert.Equal(t, `Euler: $e^{i\pi}+1=0$ and $$\int_0^1 x\,dx = \tfrac12$$`, got)
}

func TestNormalizeFragmentStripsRegionMarkers(t *testing.T) {
	got, err := NormalizeFragment("<|grounding|># Title\n<|ref|>Heading<|/ref|><|det|>[[12,34,56,78]]<|/det|> body")
	require.NoError(t, err)
	assert.Equal(t, "# Title\nHeading body", got)
}

func TestNormalizeFragmentUnbalancedMarkersFailOpen(t *testing.T) {
	raw := "text with a stray <|ref|> marker"
	got, err := NormalizeFragment(raw)
	require.Error(t, err)
	assert.Equal(t, raw, got)
}

func TestMergeNormalizationFailureKeepsRawFragment(t *testing.T) {
	dir := t.TempDir()
	raw := "stray <|ref|> marker"
	frag := writeFragment(t, dir, "task_1.md", raw)
	out := filepath.Join(dir, "output.md")

	tasks := []models.Task{
		{ID: 1, Kind: models.KindImage, SourcePath: "/in/a.png", Status: models.StatusCompleted, OutputPath: frag},
	}

	summary, err := Tasks(tasks, out, Options{Normalize: true}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Included)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), raw)
}
