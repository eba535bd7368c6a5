package decompose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ocr-agent/internal/models"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func stubPageCount(t *testing.T, pages int) {
	t.Helper()
	orig := pdfPageCount
	pdfPageCount = func(string) (int, error) { return pages, nil }
	t.Cleanup(func() { pdfPageCount = orig })
}

func TestDecomposeSingleImage(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "scan.png")
	writeFile(t, img)

	specs, report, err := Decompose([]string{img})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, models.KindImage, specs[0].Kind)
	assert.Equal(t, img, specs[0].SourcePath)
	assert.Empty(t, report.Missing)
}

func TestDecomposePDFYieldsContiguousPages(t *testing.T) {
	stubPageCount(t, 3)
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "pages.pdf")
	img := filepath.Join(dir, "scan.png")
	writeFile(t, pdfPath)
	writeFile(t, img)

	specs, _, err := Decompose([]string{pdfPath, img})
	require.NoError(t, err)
	require.Len(t, specs, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, models.KindPDFPage, specs[i].Kind)
		assert.Equal(t, i, specs[i].PageIndex)
		assert.Equal(t, 3, specs[i].PageCount)
	}
	assert.Equal(t, models.KindImage, specs[3].Kind)
}

func TestDecomposeDirectoryIsLexicographicDepthFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.png"))
	writeFile(t, filepath.Join(dir, "a.png"))
	writeFile(t, filepath.Join(dir, "ab", "nested.jpg"))
	writeFile(t, filepath.Join(dir, "notes.txt"))

	specs, _, err := Decompose([]string{dir})
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, filepath.Join(dir, "a.png"), specs[0].SourcePath)
	assert.Equal(t, filepath.Join(dir, "ab", "nested.jpg"), specs[1].SourcePath)
	assert.Equal(t, filepath.Join(dir, "b.png"), specs[2].SourcePath)
}

func TestDecomposeInputOrderIsPreserved(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "z.png")
	second := filepath.Join(dir, "a.png")
	writeFile(t, first)
	writeFile(t, second)

	specs, _, err := Decompose([]string{first, second})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, first, specs[0].SourcePath)
	assert.Equal(t, second, specs[1].SourcePath)
}

func TestDecomposeNothingEnqueued(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.txt"))
	writeFile(t, filepath.Join(dir, "data.csv"))

	specs, report, err := Decompose([]string{dir})
	require.ErrorIs(t, err, models.ErrNothingEnqueued)
	assert.Nil(t, specs)
	assert.Equal(t, []string{dir}, report.EmptyDirs)
}

func TestDecomposeReportsMissingAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	img := filepath.Join(dir, "scan.jpg")
	writeFile(t, txt)
	writeFile(t, img)
	missing := filepath.Join(dir, "nope.png")

	specs, report, err := Decompose([]string{missing, txt, img})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, []string{missing}, report.Missing)
	assert.Equal(t, []string{txt}, report.Unsupported)
}
