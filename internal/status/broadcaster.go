package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix prefixes the Redis channel of an import
const ChannelPrefix = "note-status:"

// DefaultPublishTimeout bounds a single broadcast
const DefaultPublishTimeout = 2 * time.Second

// Broadcaster publishes status events to observers. Implementations must
// return within a bounded time; callers treat failures as best effort.
type Broadcaster interface {
	AddStatusEventAndBroadcast(ctx context.Context, event Event) error
}

// Channel is the pub/sub channel observers of an import subscribe to
func Channel(importID string) string {
	return ChannelPrefix + importID
}

// publisher is the part of *redis.Client the broadcaster uses
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBroadcaster publishes events as JSON on a per-import Redis channel
type RedisBroadcaster struct {
	client  publisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisBroadcaster creates a broadcaster over a Redis client
func NewRedisBroadcaster(client publisher, timeout time.Duration, logger *slog.Logger) *RedisBroadcaster {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &RedisBroadcaster{client: client, timeout: timeout, logger: logger}
}

// AddStatusEventAndBroadcast publishes the event
func (b *RedisBroadcaster) AddStatusEventAndBroadcast(ctx context.Context, event Event) error {
	if event.ImportID == "" {
		return errors.New("status event requires an import id")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	receivers, err := b.client.Publish(ctx, Channel(event.ImportID), payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}

	b.logger.Debug("Status event published",
		slog.String("import_id", event.ImportID),
		slog.String("note_id", event.NoteID),
		slog.String("status", string(event.Status)),
		slog.Int64("receivers", receivers),
	)
	return nil
}

// LogBroadcaster only logs events, used when no transport is configured
type LogBroadcaster struct {
	logger *slog.Logger
}

// NewLogBroadcaster creates a log-only broadcaster
func NewLogBroadcaster(logger *slog.Logger) *LogBroadcaster {
	return &LogBroadcaster{logger: logger}
}

// AddStatusEventAndBroadcast logs the event
func (b *LogBroadcaster) AddStatusEventAndBroadcast(_ context.Context, event Event) error {
	attrs := []any{
		slog.String("import_id", event.ImportID),
		slog.String("note_id", event.NoteID),
		slog.String("status", string(event.Status)),
		slog.String("context", event.Context),
		slog.String("message", event.Message),
	}
	if event.CurrentCount != nil && event.TotalCount != nil {
		attrs = append(attrs, slog.Int("current", *event.CurrentCount), slog.Int("total", *event.TotalCount))
	}
	b.logger.Info("Status event", attrs...)
	return nil
}

// Multi fans an event out to several broadcasters; every one is attempted
type Multi []Broadcaster

// AddStatusEventAndBroadcast delivers to all and joins the failures
func (m Multi) AddStatusEventAndBroadcast(ctx context.Context, event Event) error {
	var errs []error
	for _, b := range m {
		if err := b.AddStatusEventAndBroadcast(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
