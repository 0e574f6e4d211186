// Command ingestworker runs the Ingestion Worker (spec §4.E): it
// consumes queue.Ingestion and turns BulkUpload/Update messages into
// embedded, persisted, indexed chunks.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/ingestion"
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

	q := queue.NewRedisQueue(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	defer q.Close()
	if err := q.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("failed to reach queue")
	}

	worker := ingestion.NewWorker(q, meta, vectors, logger)
	worker.MaxAttempts = cfg.Worker.MaxAttempts
	worker.MaxBackoff = cfg.Worker.MaxBackoff
	worker.PollTimeout = cfg.Worker.PollTimeout

	logger.Info("ingestion worker starting")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("ingestion worker stopped unexpectedly")
	}
	logger.Info("ingestion worker stopped")
}
