// Package messaging implements the asynchronous request/reply protocol the
// users service speaks over the message bus: correlation of independently
// timed request and response messages, per-call transient reply queues, and
// the responder loop that answers well-known request queues.
//
// The package is transport neutral. The AMQP implementation of its ports
// lives in internal/rabbitmq.
package messaging
