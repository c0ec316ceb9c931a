package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasktree/backend/internal/config"
	"tasktree/backend/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog := logging.New("error", "json", os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	app, err := newApp(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := app.Start()
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errs:
		if err != nil {
			log.Error().Err(err).Msg("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown finished with errors")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
