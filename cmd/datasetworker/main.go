// Command datasetworker runs the Dataset Lifecycle worker (spec §4.K):
// it consumes queue.DeleteDataset and clears a soft-deleted dataset's
// chunks, vector points, groups, files, and analytics rows in batches.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/analytics"
	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/dataset"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
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

	vectors, err := vectorstore.NewClient(&vectorstore.Config{
		Host:     cfg.Qdrant.Host,
		GRPCPort: cfg.Qdrant.GRPCPort,
		APIKey:   cfg.Qdrant.APIKey,
		UseTLS:   cfg.Qdrant.UseTLS,
		Timeout:  cfg.Qdrant.Timeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build vector store client")
	}
	if err := vectors.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("failed to connect to vector store")
	}
	defer vectors.Close()

	an, err := analytics.NewClickHouseStore(cfg.ClickHouse, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to analytics store")
	}
	defer an.Close()

	q := queue.NewRedisQueue(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	defer q.Close()
	if err := q.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("failed to reach queue")
	}

	worker := dataset.NewWorker(q, meta, vectors, an, logger)
	worker.MaxBackoff = cfg.Worker.MaxBackoff
	worker.PollTimeout = cfg.Worker.PollTimeout
	worker.MaxAttempts = cfg.Worker.MaxAttempts
	worker.BatchSize = cfg.Worker.DeleteBatchSize

	logger.Info("dataset lifecycle worker starting")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("dataset lifecycle worker stopped unexpectedly")
	}
	logger.Info("dataset lifecycle worker stopped")
}
