// Command csvworker runs the CSV/JSONL Importer (spec §4.F): it consumes
// queue.CSVJSONLIngestion, streams an uploaded object's rows through a
// field mapping, and republishes them onto queue.Ingestion in batches.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/blobstore"
	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/importer"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
)

var configFile = flag.String("config", "", "optional YAML file overlaying the environment-derived defaults")

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := metadatastore.NewPgStore(ctx, cfg.Postgres.DSN(), logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to metadata store")
	}
	defer meta.Close()

	blobs, err := blobstore.NewClient(cfg.Blob, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build blob store client")
	}

	q := queue.NewRedisQueue(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	defer q.Close()
	if err := q.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("failed to reach queue")
	}

	worker := importer.NewWorker(q, meta, blobs, logger)
	worker.MaxBackoff = cfg.Worker.MaxBackoff
	worker.PollTimeout = cfg.Worker.PollTimeout

	logger.Info("csv/jsonl importer starting")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("csv/jsonl importer stopped unexpectedly")
	}
	logger.Info("csv/jsonl importer stopped")
}
