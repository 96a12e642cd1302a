// Command spider ingests subjects into the local catalog without going
// through the API server. It takes either an ad-hoc id list or the name
// of a registered job:
//
//	spider 253 876 115908
//	spider -job spring-season
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"animehub/internal/fetch"
	"animehub/internal/ingest"
	"animehub/internal/spider"
	"animehub/pkg/database"
	"animehub/pkg/utils"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	jobName := flag.String("job", "", "run the subject list of a registered job")
	flag.Parse()

	ids := flag.Args()
	if len(ids) == 0 && *jobName == "" {
		logger.Fatal("usage: spider [-job <name>] [subject-id ...]")
	}

	cfg := utils.LoadConfig()
	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *jobName != "" {
		jobIDs, err := spider.NewRegistry(db).IDList(ctx, *jobName)
		if err != nil {
			logger.Fatal("load job", zap.String("job", *jobName), zap.Error(err))
		}
		ids = append(jobIDs, ids...)
	}

	client := fetch.NewClient(logger, cfg.BangumiBase)
	client.SetDelayBand(cfg.FetchDelayMin, cfg.FetchDelayMax)

	sites := ingest.Sites{BangumiBase: cfg.BangumiBase, MoegirlBase: cfg.MoegirlBase}
	ingestor := ingest.NewIngestor(db, client, sites, logger)

	committed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			logger.Warn("interrupted", zap.Int("committed", committed))
			return
		}

		outcome, err := ingestor.IngestSubject(ctx, id)
		if err != nil {
			logger.Warn("subject failed",
				zap.String("subject_id", id), zap.Error(err))
			continue
		}
		if outcome == ingest.OutcomeCommitted {
			committed++
		}
		logger.Info("subject done",
			zap.String("subject_id", id), zap.String("outcome", string(outcome)))
	}

	logger.Info("ingestion run complete",
		zap.Int("committed", committed), zap.Int("requested", len(ids)))
}
