package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// subscriber is the part of *redis.Client the subscriber uses
type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisSubscriber reads the events RedisBroadcaster publishes
type RedisSubscriber struct {
	client subscriber
	logger *slog.Logger
}

// NewRedisSubscriber creates a subscriber over a Redis client
func NewRedisSubscriber(client subscriber, logger *slog.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, logger: logger}
}

// Subscribe streams the events of an import until ctx is done. The channel
// is closed when the subscription ends.
func (s *RedisSubscriber) Subscribe(ctx context.Context, importID string) (<-chan Event, error) {
	ps := s.client.Subscribe(ctx, Channel(importID))

	// wait for the subscription to be confirmed so no event is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Channel(importID), err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("Dropping malformed status event",
						slog.String("channel", msg.Channel),
						slog.Any("error", err),
					)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
