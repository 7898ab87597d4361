package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"replyBandit/app/echo-server/server"
	"replyBandit/pkg/config"
	"replyBandit/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment, cfg.App.LogLevel)
	logger.Info("Starting reply bandit", "version", cfg.App.Version)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		logger.Fatal("Server exited with error", "error", err)
	}
}
