package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/eventlog"
	"github.com/stemsplit/api/internal/logging"
	"github.com/stemsplit/api/internal/service"
	ws "github.com/stemsplit/api/internal/websocket"
	"github.com/stemsplit/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stdout)
	slog.SetDefault(appLogger)
	workerLogger := logging.NewComponentLogger(appLogger, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:                  cfg.Redis.Addr(),
		Password:              cfg.Redis.Password,
		DB:                    cfg.Redis.DB,
		ContextTimeoutEnabled: true,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis not available: %v", err)
	}

	if cfg.Storage.AccessKey == "" {
		log.Fatalf("Object storage must be configured for standalone workers")
	}
	store, err := client.NewS3Client(ctx, &cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	queue := client.NewRedisQueue(redisClient, cfg.Queue.Name).WithBlockTimeout(cfg.Worker.BlockTimeout)
	events := eventlog.New(redisClient, cfg.Queue.LogList, cfg.Server.NodeID, "worker", appLogger)
	separator := client.NewDemucsClient(&cfg.Separator)
	progress := ws.NewPublisher(redisClient, cfg.Queue.Events, workerLogger)

	var notifier worker.OutcomeNotifier
	if cfg.Callback.Enabled {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		notifier = service.NewCallbackNotifier(asynqClient, events, cfg.Callback.MaxRetry)
	}

	pool := worker.NewPool(cfg.Server.NodeID, cfg.Worker.Concurrency, func(consumer string) *worker.SeparationWorker {
		w := worker.NewSeparationWorker(consumer, queue, store, separator, events, cfg, workerLogger).
			WithProgress(progress)
		if notifier != nil {
			w.WithNotifier(notifier)
		}
		return w
	}, workerLogger)

	workerLogger.Info("starting workers",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("queue", cfg.Queue.Name),
		slog.Any("parts", cfg.Separator.Parts),
	)
	pool.Run(ctx)
}
