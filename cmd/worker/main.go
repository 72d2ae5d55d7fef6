package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"scheduler/internal/applog"
	"scheduler/internal/audit"
	"scheduler/internal/config"
	"scheduler/internal/queue"
	"scheduler/internal/store"
)

// Worker consumes engine events from the queue and appends them to the
// audit trail.
func main() {
	cfg := config.Load()
	logger := applog.New(cfg.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "scheduler:events")
	}

	repo := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("audit worker started, waiting for events")
	for msg := range messages {
		if msg.Kind == "" {
			continue
		}
		if err := repo.Insert(ctx, msg.Kind, msg.Body); err != nil {
			logger.Warn("audit insert failed", zap.String("kind", msg.Kind), zap.Error(err))
			continue
		}
		logger.Debug("event recorded", zap.String("kind", msg.Kind))
	}

	logger.Info("audit worker stopped")
}
