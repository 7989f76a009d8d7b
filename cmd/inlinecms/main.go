// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the inline content editing server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inlinecms/internal/cache"
	"inlinecms/internal/config"
	"inlinecms/internal/database"
	"inlinecms/internal/engine"
	"inlinecms/internal/handlers"
	"inlinecms/internal/middleware"
	"inlinecms/internal/preview"
	"inlinecms/internal/publish"
	"inlinecms/internal/router"
	"inlinecms/internal/session"
	"inlinecms/internal/store"
	"inlinecms/internal/transfer"
	"inlinecms/web"
)

// Editor API requests allowed per editor per minute.
const adminRateLimit = 600

// repositories bundles the storage backend.
type repositories struct {
	content store.ContentRepository
	pages   store.PageRepository
	log     store.TransitionLogger
	db      *sql.DB
}

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: text in development, JSON otherwise.
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"store", cfg.StoreBackend,
		"languages", cfg.Languages,
		"editors", len(cfg.EditorTokens),
	)

	repos, err := openRepositories(cfg)
	if err != nil {
		slog.Error("failed to open content repository", "error", err)
		os.Exit(1)
	}
	if repos.db != nil {
		defer repos.db.Close()
	}

	// Valkey holds the L2 page cache and the preview override channel.
	// Without it pages are rendered on every request and overrides stay
	// in process.
	var (
		overrides   preview.Overrides = preview.NewMemoryOverrides()
		invalidator publish.Invalidator
		publicCache handlers.PageCache
		purger      handlers.CachePurger
	)
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Warn("valkey unavailable, page cache disabled and preview overrides kept in process", "error", err)
	} else {
		defer valkeyClient.Close()
		pageCache := cache.NewPageCache(valkeyClient, cache.DefaultPageTTL)
		overrides = cache.NewPreviewOverrides(valkeyClient, cfg.PreviewTTL)
		invalidator = pageCache
		publicCache = pageCache
		purger = pageCache
	}

	// Initialize the template engine for page rendering.
	eng := engine.New()

	machine := publish.NewMachine(repos.content, publish.Config{
		DefaultLang: cfg.DefaultLanguage,
		Log:         repos.log,
		Cache:       invalidator,
	})
	transferSvc := transfer.NewService(repos.content, repos.pages, transfer.Config{
		Languages:   cfg.Languages,
		DefaultLang: cfg.DefaultLanguage,
		Cache:       invalidator,
	})

	// Preview surfaces connect to the hub over websockets.
	hub := preview.NewHub(preview.HubConfig{AllowedOrigins: cfg.PreviewAllowedOrigins})

	manager := session.NewManager(session.Deps{
		Repo:      repos.content,
		Pages:     repos.pages,
		Overrides: overrides,
		Transport: hub,
		Cache:     invalidator,
	}, cfg.Session())
	manager.StartJanitor(0)

	limiter := middleware.NewRateLimiter(adminRateLimit, time.Minute, nil)
	defer limiter.Stop()

	// Create handler groups with their dependencies.
	langs := handlers.Languages{Supported: cfg.Languages, Default: cfg.DefaultLanguage}
	r := router.New(router.Deps{
		Auth:         middleware.NewAuthenticator(cfg.EditorTokens),
		Limiter:      limiter,
		Admin:        handlers.NewAdmin(repos.pages, repos.content, machine, transferSvc, eng, purger),
		Sessions:     handlers.NewSessions(manager, langs),
		Public:       handlers.NewPublic(eng, repos.pages, repos.content, overrides, publicCache, langs),
		Hub:          hub,
		Static:       web.Static(),
		FrameOrigins: cfg.PreviewAllowedOrigins,
	})

	// WriteTimeout is left at zero so preview websockets are not cut off;
	// the hub sets its own write deadlines.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Open sessions are torn down with the configured policy, so pending
	// edits are flushed before the repository closes.
	if err := manager.Close(ctx); err != nil {
		slog.Error("editing sessions closed with errors", "error", err)
	}

	slog.Info("server stopped gracefully")
}

// openRepositories connects the configured storage backend.
func openRepositories(cfg *config.Config) (*repositories, error) {
	if cfg.StoreBackend == config.BackendMemory {
		mem := store.NewMemory(store.WithPages(database.DevPages()...))
		slog.Warn("using in-memory content repository; content is lost on restart")
		return &repositories{content: mem, pages: mem, log: mem}, nil
	}

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &repositories{
		content: store.NewElementStore(db),
		pages:   store.NewPageStore(db),
		log:     store.NewTransitionLogStore(db),
		db:      db,
	}, nil
}
