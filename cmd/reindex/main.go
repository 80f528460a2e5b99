// Command reindex rebuilds the search indices from PostgreSQL.
//
//	reindex                # every entity type
//	reindex article tag    # only the named types
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/company-wiki-api/internal/config"
	"github.com/company-wiki-api/internal/database"
	"github.com/company-wiki-api/internal/models"
	"github.com/company-wiki-api/internal/repository"
	"github.com/company-wiki-api/internal/search"
	"github.com/company-wiki-api/internal/service"
	"github.com/company-wiki-api/pkg/logger"
)

func parseEntities(args []string) ([]models.EntityType, error) {
	if len(args) == 0 {
		return models.EntityTypes, nil
	}
	var out []models.EntityType
	for _, a := range args {
		if a == models.ReindexAll {
			return models.EntityTypes, nil
		}
		valid := false
		for _, e := range models.EntityTypes {
			if string(e) == a {
				out = append(out, e)
				valid = true
			}
		}
		if !valid {
			return nil, fmt.Errorf("unknown entity type %q (want article, category, tag or all)", a)
		}
	}
	return out, nil
}

func main() {
	log := logger.FromEnv()

	entities, err := parseEntities(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid arguments")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	index, err := search.NewElasticIndex(&cfg.Search, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create search client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := index.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Search cluster unreachable")
	}

	repos := repository.New(db)
	services := service.NewServices(repos, repository.NewTxManager(db), index, cfg, log)

	report, err := services.Reindex.Reindex(ctx, entities)
	if err != nil {
		log.Fatal().Err(err).Msg("Reindex failed")
	}

	for _, f := range report.Failures {
		log.Warn().Str("entity", string(f.Entity)).Str("document_id", f.DocumentID).Str("reason", f.Message).Msg("Document rejected")
	}
	if len(report.Failures) > 0 {
		stop()
		db.Close()
		os.Exit(1)
	}
}
