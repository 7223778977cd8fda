package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/coursehub/users-service/internal/metrics"
)

// RequestPublisher publishes a request message carrying a correlation id and
// the name of the queue the reply is expected on.
type RequestPublisher interface {
	PublishRequest(ctx context.Context, queue string, body []byte, correlationID, replyTo string) error
}

// ReplyQueue is a transient, exclusive reply destination owned by a single
// call for the lifetime of one request/reply cycle.
type ReplyQueue interface {
	Name() string
	// Release cancels the queue's consumer, waits for in-flight deliveries
	// to drain, and deletes the queue.
	Release(ctx context.Context) error
}

// ReplyQueueAllocator provisions reply queues. Every message arriving on an
// allocated queue is passed to the deliver callback.
type ReplyQueueAllocator interface {
	Allocate(ctx context.Context, deliver func(correlationID string, body []byte)) (ReplyQueue, error)
}

// RPCClient issues request messages over the bus and awaits the matching
// reply. Calls may overlap freely: each call gets its own correlation id and
// its own reply queue, so concurrent replies cannot cross-talk.
type RPCClient struct {
	publisher      RequestPublisher
	queues         ReplyQueueAllocator
	registry       *CorrelationRegistry
	releaseTimeout time.Duration
	logger         *slog.Logger
}

// RPCClientOption configures the client.
type RPCClientOption func(*RPCClient)

// WithRPCLogger sets the logger.
func WithRPCLogger(logger *slog.Logger) RPCClientOption {
	return func(c *RPCClient) {
		c.logger = logger
	}
}

// WithReleaseTimeout bounds how long Release may take after a call finishes.
func WithReleaseTimeout(timeout time.Duration) RPCClientOption {
	return func(c *RPCClient) {
		c.releaseTimeout = timeout
	}
}

// NewRPCClient creates a new RPC client.
func NewRPCClient(publisher RequestPublisher, queues ReplyQueueAllocator, options ...RPCClientOption) *RPCClient {
	c := &RPCClient{
		publisher:      publisher,
		queues:         queues,
		registry:       NewCorrelationRegistry(),
		releaseTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Call publishes request to queue and waits for the correlated reply. It
// returns a *TransportError if the bus cannot carry the request and a
// *TimeoutError if no reply arrives within timeout. The reply queue is
// released on every path, timeout included.
func (c *RPCClient) Call(ctx context.Context, queue string, request []byte, timeout time.Duration) ([]byte, error) {
	metrics.RPCRequests.Inc()

	replyQueue, err := c.queues.Allocate(ctx, c.dispatch)
	if err != nil {
		return nil, &TransportError{Op: "allocate reply queue", Queue: queue, Err: err}
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), c.releaseTimeout)
		defer cancel()
		if err := replyQueue.Release(releaseCtx); err != nil {
			c.logger.Warn("failed to release reply queue",
				"queue", replyQueue.Name(),
				"error", err)
		}
	}()

	correlationID, replyCh := c.registry.Register()

	if err := c.publisher.PublishRequest(ctx, queue, request, correlationID, replyQueue.Name()); err != nil {
		c.registry.Expire(correlationID)
		return nil, &TransportError{Op: "publish request", Queue: queue, Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-replyCh:
		return payload, nil

	case <-timer.C:
		if !c.registry.Expire(correlationID) {
			// Resolved between the timer firing and the expiry; the
			// buffered channel holds the payload.
			select {
			case payload := <-replyCh:
				return payload, nil
			default:
			}
		}
		metrics.RPCTimeouts.Inc()
		c.logger.Warn("rpc call timed out",
			"queue", queue,
			"correlationId", correlationID,
			"timeout", timeout)
		return nil, &TimeoutError{Queue: queue, After: timeout}

	case <-ctx.Done():
		c.registry.Expire(correlationID)
		return nil, ctx.Err()
	}
}

// Pending returns the number of in-flight calls.
func (c *RPCClient) Pending() int {
	return c.registry.Pending()
}

// dispatch routes an incoming reply to its waiter. Replies with no pending
// request, including those arriving after the call timed out, are discarded.
func (c *RPCClient) dispatch(correlationID string, body []byte) {
	if correlationID == "" {
		c.logger.Warn("discarding reply without correlation id")
		metrics.MessagesDropped.Inc()
		return
	}

	if !c.registry.Resolve(correlationID, body) {
		c.logger.Debug("discarding reply with no pending request",
			"correlationId", correlationID)
		metrics.MessagesDropped.Inc()
	}
}
