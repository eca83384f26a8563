package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mtf-screener/config"
	"mtf-screener/internal/app"
)

func main() {
	cfg, err := config.Load(os.Getenv("SCREENER_CONFIG"))
	if err != nil {
		log.Fatalf("[screener] %v", err)
	}

	svc, err := app.New(cfg)
	if err != nil {
		log.Fatalf("[screener] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		slog.Error("screener failed", "error", err)
		os.Exit(1)
	}
}
