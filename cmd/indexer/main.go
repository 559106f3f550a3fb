package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchplatform/retrieval-engine/internal/indexer/consumer"
	"github.com/searchplatform/retrieval-engine/internal/indexer/shard"
	"github.com/searchplatform/retrieval-engine/pkg/config"
	"github.com/searchplatform/retrieval-engine/pkg/kafka"
	"github.com/searchplatform/retrieval-engine/pkg/logger"
	"github.com/searchplatform/retrieval-engine/pkg/postgres"
)

const numShards = 8

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "num_shards", numShards)
	router, err := shard.NewRouter(cfg.Indexer, cfg.Retrieval, numShards)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for shardID, engine := range router.GetAllEngines() {
		engine.StartFlushLoop(ctx)
		slog.Info("flush loop started", "shard_id", shardID)
	}

	var pg *postgres.Client
	pg, err = postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document status updates disabled", "error", err)
		pg = nil
	} else {
		defer pg.Close()
	}
	var db *sql.DB
	if pg != nil {
		db = pg.DB
	}
	handler := consumer.HandleMessageSharded(router, db)
	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		handler,
	)

	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}

	slog.Info("indexer service stopped")
}
