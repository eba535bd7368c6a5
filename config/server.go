package config

import "sync"

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		serverConfig = serverFromEnv()
		applyServerOverrides(serverConfig)
	})
	return serverConfig
}

func serverFromEnv() *ServerConfig {
	loadDotEnv()
	return &ServerConfig{
		Port:     envString("SERVER_PORT", "8080"),
		LogLevel: envString("LOG_LEVEL", "info"),
		LogPath:  envString("LOG_PATH", "logs/app.log"),
	}
}
