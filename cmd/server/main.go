package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/company-wiki-api/internal/api"
	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/database"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/search"
	"github.com/company-wiki-api/internal/service"
	"github.com/company-wiki-api/pkg/logger"
)

func main() {
	log := logger.FromEnv()
	log.Info().Msg("Starting Company Wiki API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	index, err := search.NewElasticIndex(&cfg.Search, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create search client")
	}

	repos := repository.New(db)
	services := service.NewServices(repos, repository.NewTxManager(db), index, cfg, log)

	// The index is a rebuildable cache; an unreachable cluster must not keep
	// the write path down.
	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Search.SyncTimeout)
	if err := services.Reindex.EnsureIndices(startCtx); err != nil {
		log.Warn().Err(err).Msg("Search indices not ready; writes will be synced once the cluster is back")
	}
	cancelStart()

	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	services.Job.StartProcessor(jobCtx)
	log.Info().Msg("Background job processor started")

	router := api.NewRouter(services, log,
		api.Dependency{Name: "database", Check: db.HealthCheck},
		api.Dependency{Name: "search", Check: index.Ping},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	services.Job.StopProcessor()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited gracefully")
}
