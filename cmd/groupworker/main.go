// Command groupworker runs the Group/Tag Propagator (spec §4.J): it
// consumes queue.GroupUpdate and rewrites a group's tag-set contribution
// across its members' chunk tags and vector payloads.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/grouptag"
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

	lockClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer lockClient.Close()
	locker := grouptag.NewRedisLocker(lockClient)

	worker := grouptag.NewWorker(q, meta, vectors, locker, logger)
	worker.MaxBackoff = cfg.Worker.MaxBackoff
	worker.PollTimeout = cfg.Worker.PollTimeout
	worker.MaxAttempts = cfg.Worker.MaxAttempts

	logger.Info("group/tag propagator starting")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("group/tag propagator stopped unexpectedly")
	}
	logger.Info("group/tag propagator stopped")
}
