package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/deckgest/internal/api"
	"github.com/dgallion1/deckgest/internal/config"
	"github.com/dgallion1/deckgest/internal/extract"
	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/schema"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	fields := schema.DefaultFields()
	if cfg.SchemaFile != "" {
		if fields, err = schema.LoadPreset(cfg.SchemaFile); err != nil {
			log.Error("failed to load schema preset", "path", cfg.SchemaFile, "error", err)
			os.Exit(1)
		}
	}
	if _, err := schema.Build(fields); err != nil {
		log.Error("default schema is unusable", "error", err)
		os.Exit(1)
	}

	// Initialize clients.
	stats := extract.NewLLMStats(time.Hour)
	deps, closeDeps := pipeline.NewDeps(cfg, stats, log)

	// Initialize sessions.
	store := pipeline.NewSessionStore(deps, fields, cfg.SessionTTL)
	if err := store.StartCleanup(cfg.SessionCleanupSchedule); err != nil {
		log.Error("invalid session cleanup schedule", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server.
	srv := api.NewServer(store, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		store.Stop(shutdownCtx)
		closeDeps()
	}()

	log.Info("starting deckgest", "port", cfg.Port, "schema_fields", len(fields))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
