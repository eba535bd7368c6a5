package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ocr-agent/internal/watch"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

type WatchHandler struct {
	watcher *watch.Watcher
	logger  logger.Logger
}

func NewWatchHandler(watcher *watch.Watcher, log logger.Logger) *WatchHandler {
	return &WatchHandler{watcher: watcher, logger: log}
}

type watchStartRequest struct {
	InboxRoot string `json:"inboxRoot" binding:"required"`
	JobsRoot  string `json:"jobsRoot"`
}

// Start launches the inbox poll loop.
func (h *WatchHandler) Start(c *gin.Context) {
	var req watchStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.watcher.Start(req.InboxRoot, req.JobsRoot); err != nil {
		h.handleError(c, http.StatusConflict, "Failed to start watch", err)
		return
	}

	c.JSON(http.StatusOK, h.watcher.Status())
}

// Stop halts the poll loop, waiting for any in-flight bundle to finish.
func (h *WatchHandler) Stop(c *gin.Context) {
	h.watcher.Stop()
	c.JSON(http.StatusOK, h.watcher.Status())
}

// Status reports the loop state.
func (h *WatchHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.watcher.Status())
}

func (h *WatchHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(status, response)
}
