package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/stacking-predict/internal/config"
	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/monitoring"
)

func explainOptions(cfg *config.Config) explain.Options {
	return explain.Options{
		KernelSamples: cfg.Explain.KernelSamples,
		Seed:          cfg.Explain.Seed,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLogger(monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(appLogger.Logger)
	gin.SetMode(cfg.GinMode)

	analyzer, err := loadAnalyzer(cfg, appLogger)
	if err != nil {
		slog.Error("Failed to initialize analyzer", "error", err)
		os.Exit(1)
	}
	slog.Info("Model loaded",
		"model", analyzer.ModelName(),
		"kind", analyzer.ModelKind(),
		"path", cfg.ModelPath,
	)

	srv := newServer(cfg, analyzer, appLogger)
	r, err := srv.routes()
	if err != nil {
		slog.Error("Failed to build routes", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	srv.security.Cleanup(ctx, 10*time.Minute)
	if srv.figures != nil {
		srv.figures.Run(ctx, cfg.FigureCacheTTL)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
