package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"botforge/bots"
	"botforge/botservice"
	"botforge/config"
	"botforge/handlers"
	"botforge/logger"
	"botforge/middleware"
	"botforge/store"
)

func main() {
	configDir := flag.String("config", ".", "directory holding config.yaml and .env")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "botforge: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	s, err := store.NewSQLite(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := handlers.NewHub(log)
	go hub.Run(ctx)

	deps := bots.Deps{Logger: log, Events: hub}
	if cfg.BotService.Enabled {
		client := botservice.NewClient(cfg.BotService.URL, cfg.BotService.Timeout)
		deps.Notifier = client
		deps.Restarter = client
		log.Info("bot service enabled", "url", cfg.BotService.URL)
	} else {
		log.Warn("bot service disabled; prompt bots cannot be started")
	}
	manager := bots.NewManager(s, cfg.BotsConfig(), deps)

	auth := middleware.NewAuth(cfg.Server.JWTSecret, cfg.Server.TokenTTL, s, manager)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: handlers.NewRouter(handlers.RouterDeps{
			Store:   s,
			Manager: manager,
			Auth:    auth,
			Hub:     hub,
			Logger:  log,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("botforge server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
		return err
	}
	return nil
}
