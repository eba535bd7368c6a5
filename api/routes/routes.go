package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ocr-agent/api/handlers"
	"github.com/feichai0017/ocr-agent/api/middleware"
)

// SetupRoutes wires the command surface consumed by the desktop GUI and
// the remote CLI.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	jobs := v1.Group("/jobs")
	{
		jobs.POST("/enqueue", h.Job.Enqueue)
		jobs.POST("/run", h.Job.Run)
		jobs.POST("/cancel", h.Job.Cancel)
		jobs.GET("/status", h.Job.Status)
		jobs.GET("/logs", h.Job.Logs)
		jobs.POST("/reset", h.Job.Reset)
	}

	watch := v1.Group("/watch")
	{
		watch.POST("/start", h.Watch.Start)
		watch.POST("/stop", h.Watch.Stop)
		watch.GET("/status", h.Watch.Status)
	}
}
