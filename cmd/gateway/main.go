package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/httpapi"
	"github.com/Chromeox/CourseScout-sub015/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}

	// Create router with all dependencies
	mux, deps, err := httpapi.NewRouter(cfg)
	if err != nil {
		logging.Fatalf("Failed to build router: %v", err)
	}

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Gateway.DefaultTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logging.Infof("API gateway listening on %s (%d endpoints)", addr, deps.Registry.Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first so in-flight usage records reach the sink
	// before the telemetry pipeline drains.
	if err := server.Shutdown(ctx); err != nil {
		logging.Warningf("Server forced to shutdown: %v", err)
	}
	if err := deps.Close(ctx); err != nil {
		logging.Errorf("Failed to release dependencies: %v", err)
	}

	logging.Infof("Server exited")
}
