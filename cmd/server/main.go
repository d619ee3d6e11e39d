package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/eventlog"
	"github.com/stemsplit/api/internal/handler"
	"github.com/stemsplit/api/internal/logging"
	"github.com/stemsplit/api/internal/service"
	ws "github.com/stemsplit/api/internal/websocket"
	"github.com/stemsplit/api/internal/worker"
	"github.com/stemsplit/api/pkg/response"
)

const appName = "stemsplit"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stdout)
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:                  cfg.Redis.Addr(),
		Password:              cfg.Redis.Password,
		DB:                    cfg.Redis.DB,
		ContextTimeoutEnabled: true,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Warn("redis not available", slog.Any("error", err))
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	store := newStore(ctx, cfg, appLogger)
	queue := client.NewRedisQueue(redisClient, cfg.Queue.Name).WithBlockTimeout(cfg.Worker.BlockTimeout)
	events := eventlog.New(redisClient, cfg.Queue.LogList, cfg.Server.NodeID, "rest", appLogger)
	validate := validator.New()

	// WebSocket hub fed by worker progress events
	hub := ws.NewHub(logging.NewComponentLogger(appLogger, "websocket"))
	go hub.Run(ctx)
	if relay, err := ws.NewRelay(ctx, redisClient, cfg.Queue.Events, hub, appLogger); err != nil {
		appLogger.Warn("progress relay disabled", slog.Any("error", err))
	} else {
		go relay.Run(ctx)
	}

	// Initialize services
	submissionService := service.NewSubmissionService(store, queue, events, cfg.Storage.InputBucket, cfg.Separator.DefaultModel)
	retrievalService := service.NewRetrievalService(store, events, cfg.Storage.OutputBucket)
	queueService := service.NewQueueService(queue)
	reconcileService := service.NewReconcileService(store, queue, events, cfg.Storage.InputBucket, cfg.Separator.DefaultModel, cfg.Sweep.Grace)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    100 * 1024 * 1024, // base64 inflates uploads by a third
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	handler.RegisterRoutes(app, handler.Routes{
		Health: handler.NewHealthHandler(appName, map[string]handler.Check{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"storage": func(ctx context.Context) error {
				_, err := store.Exists(ctx, cfg.Storage.InputBucket, ".health")
				return err
			},
		}),
		Separate: handler.NewSeparateHandler(submissionService, validate),
		Queue:    handler.NewQueueHandler(queueService),
		Track:    handler.NewTrackHandler(retrievalService),
		Logs:     handler.NewLogsHandler(events),
		Hub:      hub,
	})

	// Callback delivery and the intent sweep run on asynq
	srv := startTaskServer(cfg, redisOpt, reconcileService, appLogger)
	scheduler := startScheduler(cfg, redisOpt, appLogger)

	// Optional in-process separation workers
	var wg sync.WaitGroup
	if cfg.Worker.Embedded > 0 {
		pool := newWorkerPool(cfg, redisClient, asynqClient, store, queue, appLogger, cfg.Server.NodeID+"-embedded", cfg.Worker.Embedded)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Run(ctx)
		}()
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		appLogger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLogger.Error("server shutdown error", slog.Any("error", err))
		}
	}()

	addr := ":" + cfg.Server.Port
	appLogger.Info("server starting", slog.String("addr", addr), slog.String("node", cfg.Server.NodeID))
	if err := app.Listen(addr); err != nil {
		appLogger.Error("server error", slog.Any("error", err))
	}

	stop()
	if scheduler != nil {
		scheduler.Shutdown()
	}
	srv.Shutdown()
	wg.Wait()
}

// newStore connects to the object store. Without credentials an in-memory
// store is used, which only works with embedded workers.
func newStore(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) client.StorageClient {
	if cfg.Storage.AccessKey == "" {
		appLogger.Warn("object storage not configured, using in-memory store")
		return client.NewMemoryStorage()
	}
	store, err := client.NewS3Client(ctx, &cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	return store
}

func newWorkerPool(cfg *config.Config, redisClient *redis.Client, asynqClient *asynq.Client, store client.StorageClient, queue *client.RedisQueue, appLogger *slog.Logger, prefix string, size int) *worker.Pool {
	workerLogger := logging.NewComponentLogger(appLogger, "worker")
	events := eventlog.New(redisClient, cfg.Queue.LogList, cfg.Server.NodeID, "worker", appLogger)
	separator := client.NewDemucsClient(&cfg.Separator)
	progress := ws.NewPublisher(redisClient, cfg.Queue.Events, workerLogger)

	var notifier worker.OutcomeNotifier
	if cfg.Callback.Enabled {
		notifier = service.NewCallbackNotifier(asynqClient, events, cfg.Callback.MaxRetry)
	}

	return worker.NewPool(prefix, size, func(consumer string) *worker.SeparationWorker {
		w := worker.NewSeparationWorker(consumer, queue, store, separator, events, cfg, workerLogger).
			WithProgress(progress)
		if notifier != nil {
			w.WithNotifier(notifier)
		}
		return w
	}, workerLogger)
}

func startTaskServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, reconcileService *service.ReconcileService, appLogger *slog.Logger) *asynq.Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			service.QueueCallbacks:   6,
			service.QueueMaintenance: 1,
		},
		Logger:   logging.NewAsynqLogger(appLogger),
		LogLevel: logging.AsynqLevel(cfg.Server.LogLevel),
	})

	taskLogger := logging.NewComponentLogger(appLogger, "tasks")
	callbackWorker := worker.NewCallbackWorker(client.NewCallbackClient(&cfg.Callback), taskLogger)
	sweepWorker := worker.NewSweepWorker(reconcileService, taskLogger)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeCallback, callbackWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeSweep, sweepWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Failed to start task server: %v", err)
	}
	return srv
}

func startScheduler(cfg *config.Config, redisOpt asynq.RedisClientOpt, appLogger *slog.Logger) *asynq.Scheduler {
	if !cfg.Sweep.Enabled {
		return nil
	}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   logging.NewAsynqLogger(appLogger),
		LogLevel: logging.AsynqLevel(cfg.Server.LogLevel),
	})

	// Every REST node registers the sweep; Unique collapses simultaneous runs
	_, err := scheduler.Register(cfg.Sweep.Schedule, service.NewSweepTask(),
		asynq.Queue(service.QueueMaintenance),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		log.Fatalf("Failed to register sweep: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	return scheduler
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
