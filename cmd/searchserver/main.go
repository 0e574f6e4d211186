// Command searchserver wires the Search Planner (spec §4.G) together
// with its typo-corrector dependencies and holds them ready
// to be driven by an external transport layer. The transport itself
// (HTTP/REST or otherwise) is out of scope here, consistent with this
// module's Non-goals: this process is the part callers embed, not the
// part that answers sockets.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/cache"
	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/search"
	"github.com/devflowinc/trieve-sub001/internal/typo"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

var (
	configFile     = flag.String("config", "", "optional YAML file overlaying the environment-derived defaults")
	bktreeCacheKey = flag.String("bktree-cache-prefix", "bktree", "redis key prefix for cached typo-corrector BK-trees")
)

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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	blobCache := cache.NewBlobCache(redisClient, 256, cache.DefaultTTL, *bktreeCacheKey)
	typoBuilder := typo.NewBuilder(meta, blobCache)
	corrector := typo.NewCorrector(typo.DefaultLexicon, nil)

	// The planner builds its own rerank.Client per search call from the
	// dataset's configured RerankerBaseURL, the same way the ingestion
	// worker builds its embedding clients per message — there is no
	// process-wide reranker instance to construct here.
	_ = search.NewPlanner(meta, vectors, typoBuilder, corrector, logger)

	logger.Info("search planner ready")
	<-ctx.Done()
	logger.Info("search server stopped")
}
