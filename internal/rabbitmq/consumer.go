package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coursehub/users-service/internal/messaging"
)

// consumerTag names one subscription so its broker-side consumer can be
// cancelled on teardown.
func consumerTag() string {
	return "consume-" + uuid.New().String()
}

// Consumer consumes queues on the shared connection and hands deliveries to
// transport-neutral handlers. Acknowledgment is manual: the handler decides
// when a message is settled.
type Consumer struct {
	pool            *ChannelPool
	prefetchCount   int
	logger          *slog.Logger
	activeConsumers sync.Map
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a new consumer
func NewConsumer(pool *ChannelPool, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		pool:          pool,
		prefetchCount: 10,
		logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// consumerInfo tracks one active subscription.
type consumerInfo struct {
	queue   string
	tag     string
	channel *PooledChannel
	cancel  context.CancelFunc
	done    chan struct{}
}

// Subscribe starts consuming messages from queue. The channel stays out of
// the pool for the lifetime of the subscription.
func (c *Consumer) Subscribe(ctx context.Context, queue string, handler messaging.DeliveryHandler) error {
	ch, err := c.pool.Get(ctx)
	if err != nil {
		return &ConsumerError{
			Queue:     queue,
			Op:        "subscribe",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		c.pool.Put(ch)
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	tag := consumerTag()
	deliveries, err := ch.Consume(
		queue,
		tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		c.pool.Put(ch)
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(ctx)

	info := &consumerInfo{
		queue:   queue,
		tag:     tag,
		channel: ch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.activeConsumers.Store(queue, info)

	go c.processDeliveries(consumerCtx, info, deliveries, handler)

	c.logger.Info("subscribed to queue",
		"queue", queue,
		"prefetchCount", c.prefetchCount,
	)

	return nil
}

// processDeliveries feeds the handler until the context or the delivery
// stream ends.
func (c *Consumer) processDeliveries(ctx context.Context, info *consumerInfo, deliveries <-chan amqp.Delivery, handler messaging.DeliveryHandler) {
	defer func() {
		close(info.done)
		// Stop broker-side delivery before the channel goes back to the
		// pool; otherwise unacked deliveries keep flowing to a channel
		// publishers may reuse.
		if err := info.channel.Cancel(info.tag, false); err != nil {
			c.logger.Warn("failed to cancel consumer",
				"queue", info.queue,
				"tag", info.tag,
				"error", err)
		}
		c.pool.Put(info.channel)
		c.activeConsumers.Delete(info.queue)
		c.logger.Info("consumer stopped", "queue", info.queue)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", info.queue)
				return
			}

			if err := handler(ctx, asDelivery(delivery)); err != nil {
				c.logger.Error("failed to handle message",
					"error", err,
					"queue", info.queue,
					"messageId", delivery.MessageId,
				)
			}
		}
	}
}

// Unsubscribe stops consuming from a queue
func (c *Consumer) Unsubscribe(queue string) error {
	value, ok := c.activeConsumers.Load(queue)
	if !ok {
		return fmt.Errorf("no active consumer for queue: %s", queue)
	}

	info := value.(*consumerInfo)
	info.cancel()
	<-info.done

	return nil
}

// UnsubscribeAll stops all active consumers
func (c *Consumer) UnsubscribeAll() error {
	var wg sync.WaitGroup

	c.activeConsumers.Range(func(key, value interface{}) bool {
		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			if err := c.Unsubscribe(queue); err != nil {
				c.logger.Error("failed to unsubscribe", "queue", queue, "error", err)
			}
		}(key.(string))
		return true
	})

	wg.Wait()
	return nil
}

// asDelivery adapts an AMQP delivery to the transport-neutral form.
func asDelivery(d amqp.Delivery) messaging.Delivery {
	return messaging.Delivery{
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		Redelivered:   d.Redelivered,
		Body:          d.Body,
		Acknowledger:  amqpAck{d: d},
	}
}

// amqpAck settles AMQP deliveries.
type amqpAck struct {
	d amqp.Delivery
}

func (a amqpAck) Ack() error {
	return a.d.Ack(false)
}

func (a amqpAck) Requeue() error {
	return a.d.Nack(false, true)
}
