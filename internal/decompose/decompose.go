package decompose

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/ocr-agent/internal/models"
)

// Supported extensions, lowercase. Anything else is skipped, not an error.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

const pdfExtension = ".pdf"

// Report collects per-input diagnostics so enqueue can tell the operator
// why a path contributed nothing, instead of silently doing less work.
type Report struct {
	Missing     []string
	Unsupported []string
	EmptyDirs   []string
}

// Decompose expands the given paths into an ordered sequence of task specs.
//
// Ordering is load-bearing: it is the only ordering signal the queue gets.
// Inputs keep their argument order; a directory expands depth-first with
// each directory's entries visited lexicographically; a PDF expands into
// one contiguous block of pdf_page specs in document order.
func Decompose(inputs []string) ([]models.TaskSpec, *Report, error) {
	report := &Report{}
	var files []string

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			report.Missing = append(report.Missing, input)
			continue
		}

		if !info.IsDir() {
			if !isSupported(input) {
				report.Unsupported = append(report.Unsupported, input)
				continue
			}
			files = append(files, input)
			continue
		}

		found, err := listSupportedFiles(input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to walk directory %s: %w", input, err)
		}
		if len(found) == 0 {
			report.EmptyDirs = append(report.EmptyDirs, input)
			continue
		}
		files = append(files, found...)
	}

	var specs []models.TaskSpec
	for _, file := range files {
		if strings.EqualFold(filepath.Ext(file), pdfExtension) {
			pageCount, err := pdfPageCount(file)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read PDF %s: %w", file, err)
			}
			if pageCount <= 0 {
				// A zero-page PDF contributes nothing meaningful.
				continue
			}
			for i := 0; i < pageCount; i++ {
				specs = append(specs, models.TaskSpec{
					Kind:       models.KindPDFPage,
					SourcePath: file,
					PageIndex:  i,
					PageCount:  pageCount,
				})
			}
			continue
		}

		specs = append(specs, models.TaskSpec{
			Kind:       models.KindImage,
			SourcePath: file,
		})
	}

	if len(specs) == 0 {
		return nil, report, models.ErrNothingEnqueued
	}

	return specs, report, nil
}

// listSupportedFiles walks dir depth-first; filepath.WalkDir visits each
// directory's entries in lexical order, which keeps the expansion stable
// across runs and platforms.
func listSupportedFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func isSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return imageExtensions[ext] || ext == pdfExtension
}

// SupportedExtensions returns the accepted extensions for help output.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(imageExtensions)+1)
	for ext := range imageExtensions {
		exts = append(exts, ext)
	}
	exts = append(exts, pdfExtension)
	return exts
}

// pdfPageCount is a variable so tests can substitute a fake counter
// without shipping binary PDF fixtures.
var pdfPageCount = func(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return reader.NumPage(), nil
}
