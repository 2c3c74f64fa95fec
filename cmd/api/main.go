package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/caliudata/benchmark-platform/cmd/mainconfig"
	"github.com/caliudata/benchmark-platform/internal/api/router"
	appconfig "github.com/caliudata/benchmark-platform/internal/config"
	"github.com/caliudata/benchmark-platform/internal/observability/metrics"
	"github.com/caliudata/benchmark-platform/pkg/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := mainconfig.NewLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting lead capture API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"email_provider", cfg.EmailProvider,
		"strict_status_codes", cfg.StrictStatusCodes,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	reg, leadMetrics := setupMetrics()

	handler, closeFn, err := buildHandler(ctx, cfg, reg, leadMetrics, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// setupMetrics returns a private registry with process collectors and the
// lead pipeline metrics registered on it.
func setupMetrics() (*prometheus.Registry, *metrics.LeadMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewLeadMetrics(reg)
}

// buildHandler assembles the pipeline, optional rate limiter and router.
func buildHandler(ctx context.Context, cfg *appconfig.Config, reg *prometheus.Registry, m *metrics.LeadMetrics, logger *logging.Logger) (http.Handler, func(), error) {
	pipeline, err := mainconfig.NewPipeline(ctx, cfg, m, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}

	limiter, closeFn, err := mainconfig.NewLimiter(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build rate limiter: %w", err)
	}

	routerCfg := &router.Config{
		Logger:       logger,
		LeadsHandler: pipeline.Handler,
		Security:     pipeline.Security,
		Limiter:      limiter,
		Metrics:      m,
	}
	if cfg.MetricsEnabled {
		routerCfg.Gatherer = reg
	}
	return router.New(routerCfg), closeFn, nil
}
