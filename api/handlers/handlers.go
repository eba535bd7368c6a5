package handlers

import (
	"github.com/feichai0017/ocr-agent/internal/job"
	"github.com/feichai0017/ocr-agent/internal/watch"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

type Handlers struct {
	Job   *JobHandler
	Watch *WatchHandler
}

func NewHandlers(manager *job.Manager, watcher *watch.Watcher, log logger.Logger) *Handlers {
	return &Handlers{
		Job:   NewJobHandler(manager, log),
		Watch: NewWatchHandler(watcher, log),
	}
}
