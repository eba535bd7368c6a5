package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

const (
	defaultTimeout     = 120 * time.Second
	defaultJPEGQuality = 85
)

// generateRequest is the wire format of the model server's generate API.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse mirrors the model server's reply.
type generateResponse struct {
	Response      string `json:"response"`
	Model         string `json:"model"`
	Done          bool   `json:"done"`
	TotalDuration int64  `json:"total_duration,omitempty"`
	EvalCount     int    `json:"eval_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HTTPEngine talks to a local model server over HTTP. The image is decoded,
// fitted to the configured inference resolution and shipped as base64 JPEG.
type HTTPEngine struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPEngine creates an engine client with a hard request timeout.
func NewHTTPEngine(cfg Config) *HTTPEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPEngine{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RecognizeImage sends one image through the model server and returns the
// extracted Markdown.
func (e *HTTPEngine) RecognizeImage(ctx context.Context, imagePath string) (string, error) {
	encoded, err := e.encodeImage(imagePath)
	if err != nil {
		return "", err
	}

	options := map[string]any{}
	if e.cfg.BaseSizePixels > 0 {
		options["base_size"] = e.cfg.BaseSizePixels
	}
	if e.cfg.ImageSizePixels > 0 {
		options["image_size"] = e.cfg.ImageSizePixels
	}
	options["crop_mode"] = e.cfg.CropMode

	reqData, err := json.Marshal(generateRequest{
		Model:   e.cfg.Model,
		Prompt:  e.cfg.Prompt,
		Images:  []string{encoded},
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint+"/api/generate", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Error != "" {
		return "", fmt.Errorf("engine error: %s", result.Error)
	}

	return result.Response, nil
}

// encodeImage loads the image, downscales it to fit the inference
// resolution when larger, and returns it as base64 JPEG.
func (e *HTTPEngine) encodeImage(imagePath string) (string, error) {
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}

	if size := e.cfg.ImageSizePixels; size > 0 {
		bounds := img.Bounds()
		if bounds.Dx() > size || bounds.Dy() > size {
			img = imaging.Fit(img, size, size, imaging.Lanczos)
		}
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: defaultJPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Close releases idle connections.
func (e *HTTPEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
