package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client wraps the go-redis client used for status pub/sub
type Client struct {
	*redis.Client
	logger *slog.Logger
}

// NewClient connects to Redis and verifies the connection
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Successfully connected to Redis",
		slog.String("addr", config.Addr),
		slog.Int("db", config.DB),
	)

	return &Client{Client: rdb, logger: logger}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	c.logger.Info("Closing Redis connection")
	if err := c.Client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", slog.Any("error", err))
		return err
	}
	return nil
}
