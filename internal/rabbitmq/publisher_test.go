package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfirmation settles like the broker would, or never.
type fakeConfirmation struct {
	acked bool
	err   error
	stuck bool
}

func (c *fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	if c.stuck {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return c.acked, c.err
}

func TestAwaitConfirm(t *testing.T) {
	t.Run("acked publish succeeds", func(t *testing.T) {
		p := NewPublisher(nil)

		err := p.awaitConfirm(context.Background(), &fakeConfirmation{acked: true})
		assert.NoError(t, err)
	})

	t.Run("nacked publish fails", func(t *testing.T) {
		p := NewPublisher(nil)

		err := p.awaitConfirm(context.Background(), &fakeConfirmation{acked: false})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nacked")
	})

	t.Run("wait failure is wrapped", func(t *testing.T) {
		p := NewPublisher(nil)
		cause := errors.New("channel closed")

		err := p.awaitConfirm(context.Background(), &fakeConfirmation{err: cause})
		assert.ErrorIs(t, err, cause)
	})

	t.Run("a confirmation that never arrives is bounded by the confirm timeout", func(t *testing.T) {
		p := NewPublisher(nil, WithConfirmTimeout(20*time.Millisecond))

		start := time.Now()
		err := p.awaitConfirm(context.Background(), &fakeConfirmation{stuck: true})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestPublishWithoutConnection(t *testing.T) {
	pool, err := NewChannelPool(NewConnectionManager("amqp://localhost"))
	require.NoError(t, err)

	p := NewPublisher(pool,
		WithPublishRetries(0),
		WithPublishTimeout(100*time.Millisecond),
	)

	err = p.Publish(context.Background(), "", "course_queue", amqp.Publishing{Body: []byte(`{}`)})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionNotReady)
	assert.Contains(t, err.Error(), "after 1 attempts")
}
