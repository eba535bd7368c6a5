package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no
// explicit path is given.
const DefaultConfigFile = "ocr-agent.yaml"

// fileOverrides mirrors the config structs with pointer fields so an
// absent key leaves the env-derived value untouched.
type fileOverrides struct {
	Engine struct {
		Backend                  *string  `yaml:"backend"`
		Endpoint                 *string  `yaml:"endpoint"`
		Model                    *string  `yaml:"model"`
		Prompt                   *string  `yaml:"prompt"`
		BaseImageSizePixels      *int     `yaml:"base_image_size_pixels"`
		InferenceImageSizePixels *int     `yaml:"inference_image_size_pixels"`
		EnableCropMode           *bool    `yaml:"enable_crop_mode"`
		RequestTimeoutSeconds    *int     `yaml:"request_timeout_seconds"`
		PDFRenderDPI             *int     `yaml:"pdf_render_dpi"`
		Languages                []string `yaml:"languages"`
	} `yaml:"engine"`
	Watch struct {
		PollIntervalSeconds *int `yaml:"poll_interval_seconds"`
	} `yaml:"watch"`
	Server struct {
		Port     *string `yaml:"port"`
		LogLevel *string `yaml:"log_level"`
		LogPath  *string `yaml:"log_path"`
	} `yaml:"server"`
}

var overrides fileOverrides

// LoadFile reads an optional YAML config file whose values override the
// environment. Call it before the first Get*Config accessor; a missing
// file at the default path is not an error.
func LoadFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEngineOverrides(cfg *EngineConfig) {
	o := overrides.Engine
	if o.Backend != nil {
		cfg.Backend = *o.Backend
	}
	if o.Endpoint != nil {
		cfg.Endpoint = *o.Endpoint
	}
	if o.Model != nil {
		cfg.Model = *o.Model
	}
	if o.Prompt != nil {
		cfg.Prompt = *o.Prompt
	}
	if o.BaseImageSizePixels != nil {
		cfg.BaseImageSizePixels = *o.BaseImageSizePixels
	}
	if o.InferenceImageSizePixels != nil {
		cfg.InferenceImageSizePixels = *o.InferenceImageSizePixels
	}
	if o.EnableCropMode != nil {
		cfg.EnableCropMode = *o.EnableCropMode
	}
	if o.RequestTimeoutSeconds != nil && *o.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(*o.RequestTimeoutSeconds) * time.Second
	}
	if o.PDFRenderDPI != nil {
		cfg.PDFRenderDPI = *o.PDFRenderDPI
	}
	if len(o.Languages) > 0 {
		cfg.Languages = o.Languages
	}
}

func applyWatchOverrides(cfg *WatchConfig) {
	if o := overrides.Watch.PollIntervalSeconds; o != nil && *o > 0 {
		cfg.PollInterval = time.Duration(*o) * time.Second
	}
}

func applyServerOverrides(cfg *ServerConfig) {
	o := overrides.Server
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
	}
	if o.LogPath != nil {
		cfg.LogPath = *o.LogPath
	}
}
