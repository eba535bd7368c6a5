package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultDPI balances OCR legibility against render time and image size.
const DefaultDPI = 200

// PageRenderer converts one PDF page into an image file the OCR engine
// can consume. Rasterization internals stay outside this process: the
// work is delegated to Poppler's pdftoppm.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdfPath string, pageIndex int, outputPath string) error
}

// PopplerRenderer renders via the pdftoppm binary.
type PopplerRenderer struct {
	dpi int
}

// NewPopplerRenderer creates a renderer at the given DPI (0 uses DefaultDPI).
func NewPopplerRenderer(dpi int) *PopplerRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PopplerRenderer{dpi: dpi}
}

// RenderPage writes pageIndex (zero-based) of pdfPath to outputPath as PNG.
func (r *PopplerRenderer) RenderPage(ctx context.Context, pdfPath string, pageIndex int, outputPath string) error {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return fmt.Errorf("pdftoppm not found in PATH: %w", err)
	}
	if pageIndex < 0 {
		return fmt.Errorf("page index must be >= 0, got %d", pageIndex)
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return fmt.Errorf("pdf not readable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// pdftoppm numbers pages from 1 and appends its own extension, so we
	// pass the path without the extension and -singlefile to suppress the
	// page-number suffix.
	pageNumber := strconv.Itoa(pageIndex + 1)
	outputBase := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))

	args := []string{
		"-png",
		"-singlefile",
		"-f", pageNumber,
		"-l", pageNumber,
		"-r", strconv.Itoa(r.dpi),
		pdfPath,
		outputBase,
	}

	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w\noutput: %s", err, string(out))
	}

	produced := outputBase + ".png"
	if produced != outputPath {
		if err := os.Rename(produced, outputPath); err != nil {
			return fmt.Errorf("failed to rename rendered page: %w", err)
		}
	}

	return nil
}
