package messaging

import "context"

// Acknowledger settles an inbound delivery with the bus.
type Acknowledger interface {
	// Ack confirms the delivery was processed and must not be redelivered.
	Ack() error
	// Requeue returns the delivery to the queue for another attempt.
	Requeue() error
}

// Delivery is one inbound message as handlers see it, independent of the
// underlying transport.
type Delivery struct {
	MessageID     string
	CorrelationID string
	ReplyTo       string
	Redelivered   bool
	Body          []byte

	Acknowledger
}

// DeliveryHandler processes one inbound delivery. The handler owns
// acknowledgment: it acks or requeues through the embedded Acknowledger.
type DeliveryHandler func(ctx context.Context, d Delivery) error
