package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relation-engine/relation-engine/internal/config"
	"github.com/relation-engine/relation-engine/internal/workers"
	"github.com/relation-engine/relation-engine/pkg/cache"
	"github.com/relation-engine/relation-engine/pkg/logger"
	"github.com/relation-engine/relation-engine/pkg/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.NewLogger()
	logger.Info("Starting Relation Engine counter worker...")

	redisClient := cache.NewRedisClient(
		cfg.Redis.Addr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		cfg.Redis.MinIdleConns,
	)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}

	consumer := queue.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.RelationEvents, "relation-counter-group")
	worker := workers.NewCounterWorker(consumer, redisClient, logger)

	go func() {
		if err := worker.Start(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("Counter worker stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	if err := worker.Stop(); err != nil {
		logger.WithError(err).Error("Failed to stop counter worker")
	}

	logger.Info("Worker exited")
}
