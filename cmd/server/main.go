package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/traindiag/traindiag/internal/bootstrap"
	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/middleware"
	"github.com/traindiag/traindiag/internal/routes"
)

// server exposes the inspection and on-demand diagnosis API over the
// learned rule collections and the retrieval store.
func main() {
	logger.Initialize()
	cfg := config.Load()

	pipeline, err := bootstrap.Build(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestLogger())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		llmStatus := "ok"
		statusCode := http.StatusOK
		if err := pipeline.LLM.CheckHealth(c.Request.Context()); err != nil {
			llmStatus = "error"
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":    llmStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": gin.H{
				"llm": llmStatus,
			},
		})
	})

	routes.SetupRoutes(r, pipeline.Rules, pipeline.Memory, pipeline.Orchestrator)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	logger.Info("Starting traindiag server", map[string]interface{}{
		"port":     cfg.Port,
		"gin_mode": gin.Mode(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	logger.Info("Shutting down server gracefully...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := pipeline.Rules.Save(); err != nil {
		logger.Error("Failed to flush rule store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := pipeline.Memory.Close(); err != nil {
		logger.Error("Failed to close retrieval store", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
