package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/copyleftdev/blackopt/internal/errors"
	"github.com/copyleftdev/blackopt/internal/logging"
	"github.com/copyleftdev/blackopt/internal/metrics"
	"github.com/copyleftdev/blackopt/internal/runs"
	"github.com/copyleftdev/blackopt/internal/server"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST and JSON-RPC API",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "Listen port (defaults to HTTP_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	if port != 0 {
		cfg.HTTP.Port = port
	}

	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "blackopt-server",
		"env":     cfg.Environment,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := newService(runs.WithMetrics(metrics.New(reg)))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(errors.RecoveryMiddleware(serviceLogger))
	r.Use(logging.Middleware(serviceLogger))
	r.Use(errors.ErrorHandler(serviceLogger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := server.NewServer(cfg, serviceLogger.Named("server"), svc)
	srv.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address":  httpServer.Addr,
			"max_runs": cfg.HTTP.MaxRuns,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	if err := srv.Close(); err != nil {
		serviceLogger.Error("Error closing server resources", map[string]interface{}{"error": err.Error()})
	}

	serviceLogger.Info("Server stopped")
	return nil
}
