package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/api"
	"github.com/kitsurai/torii/internal/config"
	"github.com/kitsurai/torii/internal/database"
	"github.com/kitsurai/torii/internal/event"
	"github.com/kitsurai/torii/internal/ingest"
	"github.com/kitsurai/torii/internal/jobs"
	"github.com/kitsurai/torii/internal/logging"
	"github.com/kitsurai/torii/internal/provider"
	"github.com/kitsurai/torii/internal/provider/anilist"
	"github.com/kitsurai/torii/internal/provider/jikan"
	"github.com/kitsurai/torii/internal/provider/kitsu"
	"github.com/kitsurai/torii/internal/reconcile"
	"github.com/kitsurai/torii/internal/relations"
	"github.com/kitsurai/torii/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("TORII_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(cfg.Logging)
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()

	// Provider infrastructure: limiter, registry, cache, health tracking.
	enabled := enabledProviders(cfg)
	limits := make(map[provider.Name]float64, len(enabled))
	priorities := make(map[provider.Name]int, len(enabled))
	for name, pc := range enabled {
		limits[name] = pc.RequestsPerSecond
		priorities[name] = pc.Priority
	}
	limiter := provider.NewRateLimiterMap(limits)

	registry := provider.NewRegistry()
	if pc, ok := enabled[provider.NameJikan]; ok {
		if pc.BaseURL != "" {
			registry.Register(jikan.NewWithBaseURL(limiter, logger, pc.BaseURL))
		} else {
			registry.Register(jikan.New(limiter, logger))
		}
	}
	if pc, ok := enabled[provider.NameAniList]; ok {
		if pc.BaseURL != "" {
			registry.Register(anilist.NewWithBaseURL(limiter, logger, pc.BaseURL))
		} else {
			registry.Register(anilist.New(limiter, logger))
		}
	}
	if pc, ok := enabled[provider.NameKitsu]; ok {
		if pc.BaseURL != "" {
			registry.Register(kitsu.NewWithBaseURL(limiter, logger, pc.BaseURL))
		} else {
			registry.Register(kitsu.New(limiter, logger))
		}
	}

	cache := provider.NewCache(cfg.Cache.DefaultTTL, cfg.Cache.NotFoundTTL, cfg.Cache.MaxEntries, logger)
	health := provider.NewHealthRegistry(priorities,
		cfg.Providers.ConsecutiveFailureLimit,
		cfg.Providers.FailureRateThreshold,
		cfg.Providers.CooldownPeriod,
		logger)
	health.OnUnhealthy(func(name provider.Name, reason string) {
		eventBus.Publish(event.ProviderUnhealthy, map[string]any{
			"provider": string(name),
			"reason":   reason,
		})
	})
	orchestrator := provider.NewOrchestrator(registry, cache, health, logger)

	// Core services.
	repo := anime.NewRepository(db)
	reconciler := reconcile.New(cfg.Reconcile, logger)
	jobStore := jobs.NewStore(db)
	pipeline := ingest.NewPipeline(repo, orchestrator, reconciler, jobStore, eventBus, cfg.Quality, cfg.Jobs.MaxAttempts, logger)
	relationsService := relations.NewService(relations.NewStore(db), repo, orchestrator, pipeline, eventBus, logger)

	worker := jobs.NewWorker(jobStore, cfg.Jobs.PollInterval, eventBus, logger)
	worker.Register(jobs.TypeEnrichment, jobs.NewEnrichmentHandler(repo, orchestrator, logger))
	worker.Register(jobs.TypeRelationsDiscovery, relations.NewDiscoveryHandler(relationsService, logger))

	router := api.NewRouter(api.RouterDeps{
		Repo:       repo,
		Orch:       orchestrator,
		Reconciler: reconciler,
		Pipeline:   pipeline,
		Relations:  relationsService,
		JobStore:   jobStore,
		Quality:    cfg.Quality,
		Logger:     logger,
	})

	logger.Info("starting torii",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go worker.Run(ctx)

	// Cache sweeper.
	go func() {
		ticker := time.NewTicker(cfg.Cache.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := cache.Sweep(); removed > 0 {
					logger.Debug("cache swept", slog.Int("removed", removed))
				}
			}
		}
	}()

	// Hot-reload the logging settings on config file changes.
	watcher := config.NewWatcher(configPath, func(updated *config.Config) {
		logManager.Reconfigure(updated.Logging)
	}, logger)
	go watcher.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// enabledProviders returns the configured providers that are switched on.
func enabledProviders(cfg *config.Config) map[provider.Name]config.ProviderConfig {
	out := make(map[provider.Name]config.ProviderConfig)
	if cfg.Providers.Jikan.Enabled {
		out[provider.NameJikan] = cfg.Providers.Jikan
	}
	if cfg.Providers.AniList.Enabled {
		out[provider.NameAniList] = cfg.Providers.AniList
	}
	if cfg.Providers.Kitsu.Enabled {
		out[provider.NameKitsu] = cfg.Providers.Kitsu
	}
	return out
}
