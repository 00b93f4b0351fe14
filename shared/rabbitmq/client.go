package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/atomic"
)

// Routing key suffixes for the retry and dead-letter lanes of a queue
const (
	retrySuffix = ".retry"
	deadSuffix  = ".dead"
)

// Config holds RabbitMQ connection configuration for a single work queue
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string
	MaxPriority        int
	PrefetchCount      int
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Message is an outgoing publishing
type Message struct {
	Body        []byte
	ContentType string
	Type        string
	MessageID   string
	Priority    uint8
	Headers     amqp.Table
	// Delay parks the message in the matching delay lane; it reaches the work
	// queue once the lane's TTL expires
	Delay time.Duration
}

// Client represents a RabbitMQ client bound to one work queue
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	isConnected *atomic.Bool
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:      config,
		logger:      logger.With(slog.String("queue", config.QueueName)),
		closeChan:   make(chan *amqp.Error),
		isConnected: atomic.NewBool(false),
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// DelayLanes are the TTLs of the delay queues declared next to a work queue.
// RabbitMQ only expires messages at the head of a queue, so each lane carries a
// single queue-level TTL and a short delay never waits behind a long one.
var DelayLanes = []time.Duration{
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
}

// DelayLane returns the shortest lane that is at least d. Delays beyond the
// longest lane are cut to it.
func DelayLane(d time.Duration) time.Duration {
	for _, lane := range DelayLanes {
		if d <= lane {
			return lane
		}
	}
	return DelayLanes[len(DelayLanes)-1]
}

// RetryQueueName is the name of one delay lane of a work queue
func RetryQueueName(queue string, lane time.Duration) string {
	return queue + laneSuffix(lane)
}

func laneSuffix(lane time.Duration) string {
	return retrySuffix + "." + strconv.FormatInt(lane.Milliseconds(), 10)
}

// DeadLetterQueueName is the name of the dead-letter lane for a work queue
func DeadLetterQueueName(queue string) string { return queue + deadSuffix }

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	c.closeChan = make(chan *amqp.Error, 1)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected.Store(true)

	go c.watchClose()

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("routing_key", c.config.RoutingKey),
	)

	return nil
}

func (c *Client) watchClose() {
	if amqpErr, ok := <-c.closeChan; ok && amqpErr != nil {
		c.isConnected.Store(false)
		c.logger.Error("RabbitMQ channel closed unexpectedly",
			slog.String("reason", amqpErr.Reason),
			slog.Int("code", amqpErr.Code),
		)
	}
}

// setup declares the exchange plus the work, delay and dead-letter queues
//
// work          --nack(requeue=false)--> dead
// retry.<ttl>   --ttl expired----------> work
func (c *Client) setup() error {
	exchangeType := c.config.ExchangeType
	if exchangeType == "" {
		exchangeType = amqp.ExchangeDirect
	}

	err := c.channel.ExchangeDeclare(
		c.config.ExchangeName,       // name
		exchangeType,                // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	deadQueue := DeadLetterQueueName(c.config.QueueName)
	if err := c.declareAndBind(deadQueue, c.config.RoutingKey+deadSuffix, nil); err != nil {
		return err
	}

	workArgs := amqp.Table{
		"x-dead-letter-exchange":    c.config.ExchangeName,
		"x-dead-letter-routing-key": c.config.RoutingKey + deadSuffix,
	}
	if c.config.MaxPriority > 0 {
		workArgs["x-max-priority"] = int32(c.config.MaxPriority)
	}
	if err := c.declareAndBind(c.config.QueueName, c.config.RoutingKey, workArgs); err != nil {
		return err
	}

	for _, lane := range DelayLanes {
		laneArgs := amqp.Table{
			"x-dead-letter-exchange":    c.config.ExchangeName,
			"x-dead-letter-routing-key": c.config.RoutingKey,
			"x-message-ttl":             lane.Milliseconds(),
		}
		if err := c.declareAndBind(RetryQueueName(c.config.QueueName, lane), c.config.RoutingKey+laneSuffix(lane), laneArgs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) declareAndBind(queue, routingKey string, args amqp.Table) error {
	_, err := c.channel.QueueDeclare(
		queue,                    // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		args,                     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	err = c.channel.QueueBind(
		queue,                 // queue name
		routingKey,            // routing key
		c.config.ExchangeName, // exchange
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	return nil
}

func (c *Client) publishing(msg Message) (string, amqp.Publishing) {
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	pub := amqp.Publishing{
		ContentType:  contentType,
		Type:         msg.Type,
		MessageId:    msg.MessageID,
		Body:         msg.Body,
		Headers:      msg.Headers,
		Priority:     msg.Priority,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	routingKey := c.config.RoutingKey
	if msg.Delay > 0 {
		routingKey += laneSuffix(DelayLane(msg.Delay))
	}
	return routingKey, pub
}

// Publish publishes a message to the work queue, or to its retry lane when delayed
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if !c.isConnected.Load() {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	routingKey, pub := c.publishing(msg)
	err := c.channel.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		routingKey,            // routing key
		false,                 // mandatory
		false,                 // immediate
		pub,
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.Int("body_size", len(msg.Body)),
		slog.String("routing_key", routingKey),
		slog.String("type", msg.Type),
	)

	return nil
}

// PublishWithRetry publishes a message with retry logic and exponential backoff
func (c *Client) PublishWithRetry(ctx context.Context, msg Message) error {
	if !c.isConnected.Load() {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult <= 0 {
		backoffMult = 2.0
	}

	routingKey, pub := c.publishing(msg)

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.channel.PublishWithContext(ctx, c.config.ExchangeName, routingKey, false, false, pub)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Successfully published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
					slog.Int("body_size", len(msg.Body)),
				)
			}
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("publish canceled: %w", ctx.Err())
			}
			delay = time.Duration(float64(delay) * backoffMult)
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// Consume sets QoS and starts consuming messages from the work queue
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.isConnected.Load() {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	if c.config.PrefetchCount > 0 {
		// per-consumer prefetch, no byte limit
		if err := c.channel.Qos(c.config.PrefetchCount, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	messages, err := c.channel.Consume(
		c.config.QueueName, // queue
		consumerTag,        // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", c.config.PrefetchCount),
	)

	return messages, nil
}

// Cancel stops delivery to a consumer without closing the channel
func (c *Client) Cancel(consumerTag string) error {
	if c.channel == nil {
		return nil
	}
	return c.channel.Cancel(consumerTag, false)
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected.Store(false)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected.Load() && c.conn != nil && !c.conn.IsClosed()
}

// QueueName returns the work queue this client is bound to
func (c *Client) QueueName() string {
	return c.config.QueueName
}
