package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/entity-history/backend/internal/backend"
	"github.com/entity-history/backend/internal/config"
	apphttp "github.com/entity-history/backend/internal/http"
	"github.com/entity-history/backend/internal/http/handlers"
	"github.com/entity-history/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store backend", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer be.Close()

	// Services
	transitions := services.NewTransitionService(be.Store, be.Publisher, log)
	asOf := services.NewAsOfService(be.Store, cfg.AsOfPageSize, log)
	diff := services.NewDiffService(be.Store, cfg.AsOfPageSize, log)
	history := services.NewHistoryService(be.Store, log)
	types := services.NewRefTypeService(be.Store, be.Publisher, log)

	// Handlers
	wsHub := handlers.NewWSHub(cfg.JWTSecret, be.Subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to change events", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(log),
	})

	apphttp.SetupRouter(app, cfg, log, be.Redis, apphttp.Handlers{
		Entities: handlers.NewEntityHandler(transitions, asOf, history, log),
		Diff:     handlers.NewDiffHandler(diff, log),
		Types:    handlers.NewTypesHandler(types, log),
		WSHub:    wsHub,
		Health:   be.Health,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("backend", cfg.StoreBackend))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
