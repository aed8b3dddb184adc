package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"restopos-backend/internal/app"
	"restopos-backend/internal/config"
	"restopos-backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
