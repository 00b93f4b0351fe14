package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/recipe-pipeline/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newOfflineClient() *Client {
	return &Client{
		config: &Config{
			ExchangeName: "recipes",
			QueueName:    "ingredient",
			RoutingKey:   "ingredient",
		},
		logger:      logger.NewDiscard(),
		isConnected: atomic.NewBool(false),
	}
}

func TestClient_Publishing(t *testing.T) {
	c := newOfflineClient()

	t.Run("immediate message routes to work queue", func(t *testing.T) {
		key, pub := c.publishing(Message{Body: []byte(`{}`), Type: "parse-ingredient", Priority: 5})

		assert.Equal(t, "ingredient", key)
		assert.Equal(t, "application/json", pub.ContentType)
		assert.Equal(t, "parse-ingredient", pub.Type)
		assert.Equal(t, uint8(5), pub.Priority)
		assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
		assert.Empty(t, pub.Expiration)
	})

	t.Run("delayed message routes to the covering delay lane", func(t *testing.T) {
		key, pub := c.publishing(Message{Body: []byte(`{}`), Delay: 1500 * time.Millisecond, ContentType: "text/plain"})

		assert.Equal(t, "ingredient.retry.2000", key)
		assert.Empty(t, pub.Expiration)
		assert.Equal(t, "text/plain", pub.ContentType)
	})

	t.Run("long and short delays use separate lanes", func(t *testing.T) {
		long, _ := c.publishing(Message{Delay: 30 * time.Second})
		short, _ := c.publishing(Message{Delay: 2 * time.Second})

		assert.Equal(t, "ingredient.retry.30000", long)
		assert.Equal(t, "ingredient.retry.2000", short)
	})
}

func TestClient_NotConnected(t *testing.T) {
	c := newOfflineClient()

	err := c.Publish(context.Background(), Message{Body: []byte(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	err = c.PublishWithRetry(context.Background(), Message{Body: []byte(`{}`)})
	require.Error(t, err)

	_, err = c.Consume("worker-1")
	require.Error(t, err)

	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Cancel("worker-1"))
	assert.NoError(t, c.Close())
}

func TestDelayLane(t *testing.T) {
	tests := []struct {
		delay time.Duration
		want  time.Duration
	}{
		{delay: time.Millisecond, want: 500 * time.Millisecond},
		{delay: time.Second, want: time.Second},
		{delay: 1001 * time.Millisecond, want: 2 * time.Second},
		{delay: 12 * time.Second, want: 30 * time.Second},
		{delay: time.Hour, want: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.delay.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DelayLane(tt.delay))
		})
	}

	for i := 1; i < len(DelayLanes); i++ {
		assert.Less(t, DelayLanes[i-1], DelayLanes[i])
	}
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "note.retry.5000", RetryQueueName("note", 5*time.Second))
	assert.Equal(t, "note.dead", DeadLetterQueueName("note"))
	assert.Equal(t, "ingredient", newOfflineClient().QueueName())
}
