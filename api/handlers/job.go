package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ocr-agent/internal/decompose"
	"github.com/feichai0017/ocr-agent/internal/job"
	"github.com/feichai0017/ocr-agent/internal/models"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

type JobHandler struct {
	manager *job.Manager
	logger  logger.Logger
}

func NewJobHandler(manager *job.Manager, log logger.Logger) *JobHandler {
	return &JobHandler{manager: manager, logger: log}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type enqueueRequest struct {
	JobRoot string   `json:"jobRoot" binding:"required"`
	Inputs  []string `json:"inputs" binding:"required"`
	// CopyInputs copies the sources into the job root first, so the job
	// stays self-contained even if the originals move.
	CopyInputs bool `json:"copyInputs"`
}

type enqueueResponse struct {
	TaskIDs []int64           `json:"taskIds"`
	Report  *decompose.Report `json:"report,omitempty"`
}

// Enqueue decomposes the given inputs into tasks and appends them to
// the job root's queue.
func (h *JobHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		ids    []int64
		report *decompose.Report
		err    error
	)
	if req.CopyInputs {
		ids, report, err = h.manager.AddInputs(c.Request.Context(), req.JobRoot, req.Inputs)
	} else {
		ids, report, err = h.manager.Enqueue(c.Request.Context(), req.JobRoot, req.Inputs)
	}
	if err != nil {
		if errors.Is(err, models.ErrNothingEnqueued) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "No supported files found in the given inputs",
				"report":  report,
			})
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to enqueue inputs", err)
		return
	}

	c.JSON(http.StatusOK, enqueueResponse{TaskIDs: ids, Report: report})
}

type runRequest struct {
	JobRoot   string `json:"jobRoot" binding:"required"`
	FailFast  bool   `json:"failFast"`
	Normalize bool   `json:"normalize"`
}

// Run starts the pipeline for a job root; processing happens in the
// background and progress is observable via Status and Logs.
func (h *JobHandler) Run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	opts := job.RunOptions{FailFast: req.FailFast, Normalize: req.Normalize}
	if err := h.manager.Run(req.JobRoot, opts); err != nil {
		if errors.Is(err, models.ErrJobAlreadyRunning) {
			h.handleError(c, http.StatusConflict, "A run is already active for this job root", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to start run", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Run started",
		"jobRoot": req.JobRoot,
	})
}

type jobRootRequest struct {
	JobRoot string `json:"jobRoot" binding:"required"`
}

// Cancel flags the active run to stop at the next task boundary.
func (h *JobHandler) Cancel(c *gin.Context) {
	var req jobRootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.manager.Cancel(req.JobRoot); err != nil {
		h.handleError(c, http.StatusConflict, "Failed to cancel", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cancellation requested",
		"jobRoot": req.JobRoot,
	})
}

// Status returns the aggregate snapshot for a job root.
func (h *JobHandler) Status(c *gin.Context) {
	jobRoot := c.Query("jobRoot")
	if jobRoot == "" {
		h.handleError(c, http.StatusBadRequest, "jobRoot query parameter is required", nil)
		return
	}

	status, err := h.manager.Status(c.Request.Context(), jobRoot)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Logs returns the tail of the most recent run's log lines.
func (h *JobHandler) Logs(c *gin.Context) {
	jobRoot := c.Query("jobRoot")
	if jobRoot == "" {
		h.handleError(c, http.StatusBadRequest, "jobRoot query parameter is required", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobRoot": jobRoot,
		"lines":   h.manager.Logs(jobRoot),
	})
}

type resetRequest struct {
	JobRoot       string `json:"jobRoot" binding:"required"`
	DeleteOutputs bool   `json:"deleteOutputs"`
}

// Reset clears every task row and, optionally, the output artifacts.
func (h *JobHandler) Reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.manager.Reset(c.Request.Context(), req.JobRoot, req.DeleteOutputs); err != nil {
		if errors.Is(err, models.ErrJobAlreadyRunning) {
			h.handleError(c, http.StatusConflict, "Cannot reset while a run is active", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to reset job", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job reset",
		"jobRoot": req.JobRoot,
	})
}

func (h *JobHandler) handleError(c *gin.Context, status int, message string, err error) {
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
