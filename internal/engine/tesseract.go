package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs OCR in-process via libtesseract. It is the fallback
// when no model server is configured; plain text out, no layout markers.
// The client is not safe for concurrent use, which matches the serial
// runner: one recognition at a time.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractEngine creates the engine with the given languages
// (empty means gosseract's default, "eng").
func NewTesseractEngine(cfg Config) (*TesseractEngine, error) {
	client := gosseract.NewClient()
	if len(cfg.Languages) > 0 {
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set languages: %w", err)
		}
	}
	return &TesseractEngine{client: client}, nil
}

// RecognizeImage extracts text from the image at imagePath.
func (e *TesseractEngine) RecognizeImage(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("image not readable: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}
	return text, nil
}

// Close releases the underlying tesseract handle.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
