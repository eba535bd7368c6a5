package engine

import (
	"context"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestImage(t *testing.T, width, height int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.png")
	img := imaging.New(width, height, color.White)
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestRecognizeImageSendsParamsAndReturnsText(t *testing.T) {
	imagePath := writeTestImage(t, 64, 48)

	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(generateResponse{Response: "# Page one", Done: true})
	}))
	defer server.Close()

	e := NewHTTPEngine(Config{
		Endpoint:        server.URL,
		Model:           "deepseek-ocr2",
		Prompt:          "<image>\nConvert the document to markdown.",
		BaseSizePixels:  1024,
		ImageSizePixels: 768,
		CropMode:        true,
	})
	defer e.Close()

	text, err := e.RecognizeImage(context.Background(), imagePath)
	require.NoError(t, err)
	assert.Equal(t, "# Page one", text)

	assert.Equal(t, "deepseek-ocr2", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Images, 1)
	assert.NotEmpty(t, got.Images[0])
	assert.Equal(t, float64(768), got.Options["image_size"])
	assert.Equal(t, true, got.Options["crop_mode"])
}

func TestRecognizeImageSurfacesEngineError(t *testing.T) {
	imagePath := writeTestImage(t, 8, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Error: "model not loaded"})
	}))
	defer server.Close()

	e := NewHTTPEngine(Config{Endpoint: server.URL})
	defer e.Close()

	_, err := e.RecognizeImage(context.Background(), imagePath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRecognizeImageTimesOut(t *testing.T) {
	imagePath := writeTestImage(t, 8, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	e := NewHTTPEngine(Config{Endpoint: server.URL, Timeout: 20 * time.Millisecond})
	defer e.Close()

	_, err := e.RecognizeImage(context.Background(), imagePath)
	require.Error(t, err)
}

func TestRecognizeImageMissingFile(t *testing.T) {
	e := NewHTTPEngine(Config{Endpoint: "http://127.0.0.1:0"})
	defer e.Close()

	_, err := e.RecognizeImage(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
}
