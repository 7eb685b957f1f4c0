package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/fintrack/insight-engine/internal/api"
	"github.com/fintrack/insight-engine/internal/config"
	"github.com/fintrack/insight-engine/internal/logging"
	"github.com/fintrack/insight-engine/internal/ml"
	"github.com/fintrack/insight-engine/internal/services"
	"github.com/fintrack/insight-engine/internal/telemetry"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(context.Background())
		if err != nil {
			logger.WithError(err).Warn("telemetry init failed; continuing without tracing")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
		}
	}

	modelService := ml.NewModelService(cfg.ML, logger)
	if _, err := os.Stat(cfg.ML.ModelPath); err == nil {
		if modelService.LoadModels(cfg.ML.ModelPath) {
			logger.WithField("path", cfg.ML.ModelPath).Info("restored persisted models")
		}
	}

	insightService := services.NewInsightService(modelService, logger)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, cfg, logger, modelService, insightService)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("insight engine starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("forced shutdown")
	}
	logger.Info("server exited")
}
