package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/recipe-pipeline/internal/app"
	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/config"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/worker"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/actions"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := app.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := initContainer(ctx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}

	if err := container.Start(ctx); err != nil {
		closeContainer(cfg, container, appLogger.Logger)
		return fmt.Errorf("failed to start workers: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	<-ctx.Done()
	appLogger.Info("Received signal, shutting down gracefully")

	if err := closeContainer(cfg, container, appLogger.Logger); err != nil {
		return err
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initContainer connects every backing service and builds the workers. On
// failure everything opened so far is closed again.
func initContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*worker.Container, error) {
	dbClient, err := app.InitDatabase(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logger.Info("Database connection established")

	redisClient, err := app.InitRedis(&cfg.Redis, logger)
	if err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	queues := make(map[string]queue.Queue, len(recipe.Queues))
	router := queue.Router{}
	cleanup := func() {
		for _, q := range queues {
			q.Close()
		}
		if redisClient != nil {
			redisClient.Close()
		}
		dbClient.Close()
	}

	for _, name := range recipe.Queues {
		q, err := app.InitQueue(cfg, name, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		queues[name] = q
		router[name] = app.Publisher(cfg, name, q)
	}

	logger.Info("RabbitMQ connections established", slog.Int("queues", len(queues)))

	broadcaster := app.Broadcaster(&cfg.Redis, redisClient, logger)

	containerCfg := worker.ContainerConfig{
		Logger: logger,
		Deps: actions.Deps{
			Logger:      logger,
			Storage:     storage.NewStorage(dbClient.GetDB(), logger),
			Tracker:     completion.NewTracker(completion.NewSQLStore(dbClient.GetDB()), broadcaster, logger),
			Broadcaster: broadcaster,
			Queues:      router,
			Parsers:     recipe.DefaultParsers(),
		},
		Queues: queues,
		Concurrency: func(name string) int {
			return cfg.QueueSettingsFor(name).Concurrency
		},
		Retry:         cfg.RetryPolicy(),
		Backoff:       cfg.RetryPolicy(),
		ActionTimeout: cfg.Worker.ActionTimeout,
		Database:      dbClient,
	}
	if redisClient != nil {
		containerCfg.Redis = redisClient
	}

	container, err := worker.NewContainer(containerCfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create workers: %w", err)
	}
	return container, nil
}

func closeContainer(cfg *config.Config, container *worker.Container, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()

	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("Worker shutdown did not complete cleanly", slog.Any("error", err))
		return err
	}
	return nil
}
