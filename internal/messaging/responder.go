package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coursehub/users-service/internal/metrics"
)

// ReplyPublisher publishes a reply to the destination named by the request,
// copying the request's correlation id unchanged.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, queue string, body []byte, correlationID string) error
}

// Reply is the outcome of a request handler. Queue overrides the delivery's
// reply-to destination when the message kind dictates a fixed reply queue.
type Reply struct {
	Body  []byte
	Queue string
}

// RequestFunc computes the reply for an inbound request body. Returning a
// nil Reply with a nil error acknowledges the request without replying.
// Parse failures must wrap ErrBadRequest so the responder can drop the
// message instead of requeueing it forever.
type RequestFunc func(ctx context.Context, body []byte) (*Reply, error)

// Responder consumes request messages from a well-known queue, computes the
// answer and publishes it to the reply destination named in the request. The
// inbound message is acknowledged only after the reply is on the bus, so a
// crash before the ack redelivers the request.
type Responder struct {
	fn        RequestFunc
	publisher ReplyPublisher
	logger    *slog.Logger
}

// ResponderOption configures the responder.
type ResponderOption func(*Responder)

// WithResponderLogger sets the logger.
func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = logger
	}
}

// NewResponder creates a responder answering requests with fn.
func NewResponder(publisher ReplyPublisher, fn RequestFunc, options ...ResponderOption) *Responder {
	r := &Responder{
		fn:        fn,
		publisher: publisher,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Handle processes one inbound request delivery.
func (r *Responder) Handle(ctx context.Context, d Delivery) error {
	reply, err := r.fn(ctx, d.Body)
	switch {
	case err == nil:

	case errors.Is(err, ErrBadRequest):
		// Poison message: requeueing would block the queue forever.
		r.logger.Warn("dropping malformed request",
			"messageId", d.MessageID,
			"error", err)
		metrics.MessagesDropped.Inc()
		return d.Ack()

	default:
		r.logger.Error("request handler failed, requeueing",
			"messageId", d.MessageID,
			"redelivered", d.Redelivered,
			"error", err)
		return d.Requeue()
	}

	if reply != nil {
		queue := reply.Queue
		if queue == "" {
			queue = d.ReplyTo
		}
		if queue == "" {
			r.logger.Warn("request names no reply destination, dropping reply",
				"messageId", d.MessageID)
			metrics.MessagesDropped.Inc()
			return d.Ack()
		}

		if err := r.publisher.PublishReply(ctx, queue, reply.Body, d.CorrelationID); err != nil {
			// Not acknowledged: the bus redelivers and the handler, a pure
			// read, runs again.
			r.logger.Error("failed to publish reply, requeueing request",
				"replyQueue", queue,
				"correlationId", d.CorrelationID,
				"error", err)
			return d.Requeue()
		}
	}

	return d.Ack()
}
