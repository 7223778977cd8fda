// Package rabbitmq is the AMQP adapter for the users service: a long-lived
// process-scoped connection with automatic reconnection, a channel pool,
// confirm-mode publishing, manual-ack consumption, queue topology
// declaration and the reply-queue transport used by the RPC client.
package rabbitmq
