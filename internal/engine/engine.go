package engine

import (
	"context"
	"time"
)

// Engine is the external OCR collaborator, invoked once per task. The
// inference internals (model loading, GPU execution) live behind this
// boundary; the orchestrator only sees text or a bounded-time error.
type Engine interface {
	// RecognizeImage extracts Markdown text from the image at imagePath.
	// Implementations must respect ctx and return within their configured
	// timeout; the runner marks the task failed on any error.
	RecognizeImage(ctx context.Context, imagePath string) (string, error)
	Close() error
}

// Config carries the run parameters forwarded to the engine.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Model           string        `yaml:"model"`
	Prompt          string        `yaml:"prompt"`
	BaseSizePixels  int           `yaml:"baseSizePixels"`
	ImageSizePixels int           `yaml:"imageSizePixels"`
	CropMode        bool          `yaml:"cropMode"`
	Timeout         time.Duration `yaml:"timeout"`
	Languages       []string      `yaml:"languages"` // tesseract engine only
}
