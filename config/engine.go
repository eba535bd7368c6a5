package config

import (
	"sync"
	"time"
)

// Model-card suggested settings, named to avoid magic numbers.
const (
	DefaultModelName                = "deepseek-ocr2"
	DefaultMarkdownPrompt           = "<image>\n<|grounding|>Convert the document to markdown. "
	DefaultBaseImageSizePixels      = 1024
	DefaultInferenceImageSizePixels = 768
	DefaultEnableCropMode           = true
	DefaultRequestTimeout           = 120 * time.Second
	DefaultPDFRenderDPI             = 200
)

var (
	engineOnce   sync.Once
	engineConfig *EngineConfig
)

// EngineConfig holds the OCR engine settings. Backend selects the
// implementation: "http" (model server) or "tesseract" (in-process).
type EngineConfig struct {
	Backend                  string        `yaml:"backend"`
	Endpoint                 string        `yaml:"endpoint"`
	Model                    string        `yaml:"model"`
	Prompt                   string        `yaml:"prompt"`
	BaseImageSizePixels      int           `yaml:"base_image_size_pixels"`
	InferenceImageSizePixels int           `yaml:"inference_image_size_pixels"`
	EnableCropMode           bool          `yaml:"enable_crop_mode"`
	RequestTimeout           time.Duration `yaml:"-"`
	PDFRenderDPI             int           `yaml:"pdf_render_dpi"`
	Languages                []string      `yaml:"languages"`
}

func GetEngineConfig() *EngineConfig {
	engineOnce.Do(func() {
		engineConfig = engineFromEnv()
		applyEngineOverrides(engineConfig)
	})
	return engineConfig
}

func engineFromEnv() *EngineConfig {
	loadDotEnv()
	return &EngineConfig{
		Backend:                  envString("OCR_ENGINE_BACKEND", "http"),
		Endpoint:                 envString("OCR_ENGINE_ENDPOINT", "http://localhost:11434"),
		Model:                    envString("OCR_MODEL_NAME", DefaultModelName),
		Prompt:                   envString("OCR_MARKDOWN_PROMPT", DefaultMarkdownPrompt),
		BaseImageSizePixels:      envInt("OCR_BASE_IMAGE_SIZE_PIXELS", DefaultBaseImageSizePixels),
		InferenceImageSizePixels: envInt("OCR_INFERENCE_IMAGE_SIZE_PIXELS", DefaultInferenceImageSizePixels),
		EnableCropMode:           envBool("OCR_ENABLE_CROP_MODE", DefaultEnableCropMode),
		RequestTimeout:           envSeconds("OCR_REQUEST_TIMEOUT_SECONDS", DefaultRequestTimeout),
		PDFRenderDPI:             envInt("OCR_PDF_RENDER_DPI", DefaultPDFRenderDPI),
		Languages:                envList("OCR_LANGUAGES"),
	}
}
