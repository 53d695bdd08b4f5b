package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/anneal/internal/config"
	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/logging"
	"github.com/copyleftdev/anneal/internal/metrics"
	"github.com/copyleftdev/anneal/internal/server"
)

const (
	serviceName    = "anneal-server"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use standard logger as fallback if config loading fails
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": serviceName,
		"version": serviceVersion,
	})

	reg := prometheus.NewRegistry()
	r, srv, err := newRouter(cfg, serviceLogger, reg)
	if err != nil {
		serviceLogger.Fatal("Failed to build router", map[string]interface{}{"error": err})
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address":             httpServer.Addr,
			"max_concurrent_runs": cfg.Annealing.MaxConcurrentRuns,
		})

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serviceLogger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err})
	}

	// Runs outlive requests, so they are stopped after the listener
	if err := srv.Close(); err != nil {
		serviceLogger.Error("Error closing runs", map[string]interface{}{"error": err})
	}

	serviceLogger.Info("Server exited properly")
}

// newRouter wires middleware, health checks, metrics and the annealing API.
func newRouter(cfg *config.Config, logger *logging.Logger, reg *prometheus.Registry) (chi.Router, *server.Server, error) {
	opts := []server.Option{server.WithEngineLogger(logging.NewZapLogger(logger.WithField("component", "engine")))}

	if cfg.Metrics.Enabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector, err := metrics.NewCollector(reg)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "register metrics").WithComponent("server")
		}
		opts = append(opts, server.WithMetrics(collector))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apperrors.RecoveryMiddleware(logger))
	r.Use(logging.Middleware(logger))
	r.Use(apperrors.ErrorHandler(logger))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	srv := server.NewServer(cfg, logger, opts...)
	srv.RegisterRoutes(r)
	return r, srv, nil
}
