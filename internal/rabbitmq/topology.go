package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// TopologyManager declares the queues the service consumes and publishes to.
type TopologyManager struct {
	pool *ChannelPool
}

// NewTopologyManager creates a new topology manager
func NewTopologyManager(pool *ChannelPool) *TopologyManager {
	return &TopologyManager{
		pool: pool,
	}
}

// DeclareQueues declares every queue in decls, failing on the first error.
func (tm *TopologyManager) DeclareQueues(ctx context.Context, decls ...QueueDeclaration) error {
	return tm.pool.Execute(ctx, func(ch *amqp.Channel) error {
		for _, q := range decls {
			if _, err := ch.QueueDeclare(
				q.Name,
				q.Durable,
				q.AutoDelete,
				q.Exclusive,
				false, // no-wait
				q.Arguments,
			); err != nil {
				return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
			}
		}
		return nil
	})
}

// Durable declares a durable queue surviving broker restarts.
func Durable(name string) QueueDeclaration {
	return QueueDeclaration{Name: name, Durable: true}
}

// Transient declares a non-durable queue.
func Transient(name string) QueueDeclaration {
	return QueueDeclaration{Name: name}
}
