package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entity-history/backend/internal/backend"
	"github.com/entity-history/backend/internal/config"
	"github.com/entity-history/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)
	if !cfg.Persistent() {
		// The memory store is private to its process; there is nothing shared to verify.
		log.Fatal("worker requires a persistent store backend", zap.String("backend", cfg.StoreBackend))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store backend", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer be.Close()

	verifier := services.NewVerifierService(be.Store, log)

	if cfg.WorkerMetricsPort != "" {
		go serveMetrics(cfg.WorkerMetricsPort, log)
	}

	log.Info("worker started", zap.Duration("interval", cfg.WorkerInterval))

	verifyTicker := time.NewTicker(cfg.WorkerInterval)
	defer verifyTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runVerifier(ctx, verifier, cfg.WorkerInterval, log)
	for {
		select {
		case <-verifyTicker.C:
			runVerifier(ctx, verifier, cfg.WorkerInterval, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runVerifier bounds one pass by the tick interval.
func runVerifier(ctx context.Context, verifier *services.VerifierService, timeout time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := verifier.Run(ctx)
	if err != nil {
		log.Error("invariant verification failed", zap.Error(err))
		return
	}
	if !report.OK() {
		log.Warn("invariant violations found", zap.Int("count", len(report.Violations)))
	}
}

// serveMetrics exposes the verifier gauges for scraping.
func serveMetrics(port string, log *zap.Logger) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if err := app.Listen(":" + port); err != nil {
		log.Error("metrics server stopped", zap.Error(err))
	}
}
