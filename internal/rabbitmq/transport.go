package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coursehub/users-service/internal/messaging"
)

// Transport implements the messaging package's AMQP-facing ports: request
// and reply publishing plus per-call reply queue allocation.
type Transport struct {
	pool      *ChannelPool
	publisher *Publisher
	logger    *slog.Logger
}

// TransportOption configures the transport
type TransportOption func(*Transport)

// WithTransportLogger sets the logger
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates a transport on top of the shared channel pool.
func NewTransport(pool *ChannelPool, publisher *Publisher, options ...TransportOption) *Transport {
	t := &Transport{
		pool:      pool,
		publisher: publisher,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

var _ messaging.RequestPublisher = (*Transport)(nil)
var _ messaging.ReplyPublisher = (*Transport)(nil)
var _ messaging.ReplyQueueAllocator = (*Transport)(nil)

// PublishRequest publishes a request to queue carrying the correlation id
// and the reply destination.
func (t *Transport) PublishRequest(ctx context.Context, queue string, body []byte, correlationID, replyTo string) error {
	return t.publisher.Publish(ctx, "", queue, amqp.Publishing{
		MessageId:     uuid.New().String(),
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       replyTo,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
}

// PublishReply publishes a reply to the destination named by a request,
// copying its correlation id.
func (t *Transport) PublishReply(ctx context.Context, queue string, body []byte, correlationID string) error {
	return t.publisher.Publish(ctx, "", queue, amqp.Publishing{
		MessageId:     uuid.New().String(),
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
}

// Allocate creates a fresh server-named, exclusive, auto-deleting reply
// queue and starts consuming it. Every delivery is passed to deliver. The
// channel stays out of the pool until the queue is released.
func (t *Transport) Allocate(ctx context.Context, deliver func(correlationID string, body []byte)) (messaging.ReplyQueue, error) {
	ch, err := t.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		t.pool.Put(ch)
		return nil, &ChannelError{Op: "declare reply queue", Err: err, Timestamp: time.Now()}
	}

	tag := "reply-" + uuid.New().String()

	// Replies are consumed without acks: a lost reply is indistinguishable
	// from a slow one and the caller's timeout covers both.
	deliveries, err := ch.Consume(q.Name, tag, true, true, false, false, nil)
	if err != nil {
		t.pool.Put(ch)
		return nil, &ConsumerError{Queue: q.Name, ConsumerTag: tag, Op: "consume", Err: err, Timestamp: time.Now()}
	}

	rq := &replyQueue{
		name:    q.Name,
		tag:     tag,
		channel: ch,
		pool:    t.pool,
		drained: make(chan struct{}),
	}

	go func() {
		defer close(rq.drained)
		for d := range deliveries {
			deliver(d.CorrelationId, d.Body)
		}
	}()

	return rq, nil
}

// replyQueue is one allocated reply destination.
type replyQueue struct {
	name    string
	tag     string
	channel *PooledChannel
	pool    *ChannelPool
	drained chan struct{}
	once    sync.Once
	err     error
}

func (q *replyQueue) Name() string {
	return q.name
}

// Release cancels the consumer, waits until the delivery stream has closed
// so no reply races the teardown, then deletes the queue and returns the
// channel to the pool.
func (q *replyQueue) Release(ctx context.Context) error {
	q.once.Do(func() {
		q.err = q.channel.Cancel(q.tag, false)

		select {
		case <-q.drained:
		case <-ctx.Done():
			if q.err == nil {
				q.err = ctx.Err()
			}
		}

		if _, err := q.channel.QueueDelete(q.name, false, false, false); err != nil && q.err == nil {
			q.err = err
		}

		q.pool.Put(q.channel)
	})

	return q.err
}
