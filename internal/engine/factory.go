package engine

import (
	"fmt"

	"github.com/feichai0017/ocr-agent/config"
)

// NewFromConfig builds the engine selected by the runtime configuration.
func NewFromConfig(cfg *config.EngineConfig) (Engine, error) {
	ec := Config{
		Endpoint:        cfg.Endpoint,
		Model:           cfg.Model,
		Prompt:          cfg.Prompt,
		BaseSizePixels:  cfg.BaseImageSizePixels,
		ImageSizePixels: cfg.InferenceImageSizePixels,
		CropMode:        cfg.EnableCropMode,
		Timeout:         cfg.RequestTimeout,
		Languages:       cfg.Languages,
	}

	switch cfg.Backend {
	case "", "http":
		return NewHTTPEngine(ec), nil
	case "tesseract":
		return NewTesseractEngine(ec)
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}
