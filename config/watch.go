package config

import (
	"sync"
	"time"
)

const DefaultWatchPollInterval = 2 * time.Second

var (
	watchOnce   sync.Once
	watchConfig *WatchConfig
)

// WatchConfig holds the inbox polling settings.
type WatchConfig struct {
	PollInterval time.Duration `yaml:"-"`
}

func GetWatchConfig() *WatchConfig {
	watchOnce.Do(func() {
		watchConfig = watchFromEnv()
		applyWatchOverrides(watchConfig)
	})
	return watchConfig
}

func watchFromEnv() *WatchConfig {
	loadDotEnv()
	return &WatchConfig{
		PollInterval: envSeconds("WATCH_POLL_INTERVAL_SECONDS", DefaultWatchPollInterval),
	}
}
