// Package app wires configuration into the clients every service binary
// starts with.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/config"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/storage"
	"github.com/cuongbtq/recipe-pipeline/shared/database"
	"github.com/cuongbtq/recipe-pipeline/shared/logger"
	"github.com/cuongbtq/recipe-pipeline/shared/rabbitmq"
	"github.com/cuongbtq/recipe-pipeline/shared/redis"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// InitDatabase connects to the configured database and applies the schema
// when migrations are enabled
func InitDatabase(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*database.Client, error) {
	client, err := database.NewClient(&database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, log)
	if err != nil {
		return nil, err
	}

	if !cfg.Migrate {
		return client, nil
	}

	if err := storage.Migrate(ctx, client.GetDB()); err != nil {
		client.Close()
		return nil, err
	}
	if err := completion.NewSQLStore(client.GetDB()).Migrate(ctx); err != nil {
		client.Close()
		return nil, err
	}

	log.Info("Database schema is up to date")
	return client, nil
}

// InitRabbitMQ connects a client bound to one recipe queue
func InitRabbitMQ(cfg *config.Config, name string, log *slog.Logger) (*rabbitmq.Client, error) {
	rc := &cfg.RabbitMQ
	settings := cfg.QueueSettingsFor(name)
	queueName := cfg.QueueName(name)

	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               rc.Host,
		Port:               rc.Port,
		User:               rc.User,
		Password:           rc.Password,
		VHost:              rc.VHost,
		ExchangeName:       rc.Exchange.Name,
		ExchangeType:       rc.Exchange.Type,
		ExchangeDurable:    rc.Exchange.Durable,
		ExchangeAutoDelete: rc.Exchange.AutoDelete,
		QueueName:          queueName,
		QueueDurable:       rc.Queue.Durable,
		QueueAutoDelete:    rc.Queue.AutoDelete,
		QueueExclusive:     rc.Queue.Exclusive,
		RoutingKey:         queueName,
		MaxPriority:        rc.Queue.MaxPriority,
		PrefetchCount:      settings.Prefetch,
		RetryAttempts:      rc.Connection.RetryAttempts,
		RetryInterval:      rc.Connection.RetryInterval,
		Heartbeat:          rc.Connection.Heartbeat,
		ConnectionTimeout:  rc.Connection.ConnectionTimeout,
		PublishRetries:     rc.Publish.RetryAttempts,
		PublishRetryDelay:  rc.Publish.RetryInterval,
		PublishBackoffMult: rc.Publish.BackoffMultiplier,
	}, log)
}

// InitQueue wraps a RabbitMQ client for one recipe queue
func InitQueue(cfg *config.Config, name string, log *slog.Logger) (*queue.AMQPQueue, error) {
	client, err := InitRabbitMQ(cfg, name, log)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", name, err)
	}
	return queue.NewAMQPQueue(client, cfg.RabbitMQ.Consumer.TagPrefix+name, log), nil
}

// Publisher applies the configured per-queue defaults to jobs added to q
func Publisher(cfg *config.Config, name string, q queue.Publisher) queue.Publisher {
	return queue.Defaults{Publisher: q, Attempts: cfg.QueueSettingsFor(name).Attempts}
}

// InitRedis connects to Redis when it is enabled; it returns nil otherwise
func InitRedis(cfg *config.RedisConfig, log *slog.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, log)
}

// Broadcaster logs every status event and also publishes it when Redis is
// connected
func Broadcaster(cfg *config.RedisConfig, rdb *redis.Client, log *slog.Logger) status.Broadcaster {
	logged := status.NewLogBroadcaster(log)
	if rdb == nil {
		return logged
	}
	return status.Multi{
		status.NewRedisBroadcaster(rdb.Client, cfg.PublishTimeout, log),
		logged,
	}
}
