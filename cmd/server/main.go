package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ocr-agent/api/handlers"
	"github.com/feichai0017/ocr-agent/api/routes"
	"github.com/feichai0017/ocr-agent/config"
	"github.com/feichai0017/ocr-agent/internal/engine"
	"github.com/feichai0017/ocr-agent/internal/job"
	"github.com/feichai0017/ocr-agent/internal/render"
	"github.com/feichai0017/ocr-agent/internal/watch"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to an ocr-agent.yaml config file")
	flag.Parse()

	if err := config.LoadFile(*configPath); err != nil {
		panic(err)
	}
	serverCfg := config.GetServerConfig()

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", serverCfg.LogPath}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	engineCfg := config.GetEngineConfig()
	eng, err := engine.NewFromConfig(engineCfg)
	if err != nil {
		log.Fatal("Failed to create OCR engine:", logger.Error(err))
	}

	renderer := render.NewPopplerRenderer(engineCfg.PDFRenderDPI)
	manager := job.NewManager(eng, renderer, log)
	defer manager.Close()

	watcher := watch.NewWatcher(
		manager,
		config.GetWatchConfig().PollInterval,
		job.RunOptions{Normalize: true},
		log,
	)

	// init handlers
	h := handlers.NewHandlers(manager, watcher, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("port", serverCfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error:", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	watcher.Stop()

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown:", logger.Error(err))
	}
}
