package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/recipe-pipeline/internal/api/handler"
	"github.com/cuongbtq/recipe-pipeline/internal/api/router"
	"github.com/cuongbtq/recipe-pipeline/internal/api/storage"
	"github.com/cuongbtq/recipe-pipeline/internal/app"
	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/config"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/actions"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := app.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := app.InitDatabase(context.Background(), &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	noteQueue, err := app.InitQueue(cfg, recipe.QueueNote, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer noteQueue.Close()

	appLogger.Info("RabbitMQ connection established")

	redisClient, err := app.InitRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	deps := &handler.Dependencies{
		Logger:      appLogger.Logger,
		Storage:     storage.NewStorage(dbClient),
		Progress:    completion.NewTracker(completion.NewSQLStore(dbClient.GetDB()), nil, appLogger.Logger),
		NoteQueue:   app.Publisher(cfg, recipe.QueueNote, noteQueue),
		Broadcaster: app.Broadcaster(&cfg.Redis, redisClient, appLogger.Logger),
		Catalog:     actions.Catalog,
	}
	if redisClient != nil {
		defer redisClient.Close()
		deps.Events = status.NewRedisSubscriber(redisClient.Client, appLogger.Logger)
	}

	r := initRouter(cfg.App.Environment, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", err))
		return err
	}

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
