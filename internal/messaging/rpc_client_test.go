package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus simulates the transport: it records published requests and lets
// tests inject replies into the deliver callbacks of allocated reply queues.
type fakeBus struct {
	mu         sync.Mutex
	published  []publishedRequest
	deliver    map[string]func(correlationID string, body []byte)
	released   map[string]bool
	publishErr error
	allocErr   error
	allocated  int
}

type publishedRequest struct {
	queue         string
	body          []byte
	correlationID string
	replyTo       string
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		deliver:  make(map[string]func(string, []byte)),
		released: make(map[string]bool),
	}
}

func (b *fakeBus) PublishRequest(ctx context.Context, queue string, body []byte, correlationID, replyTo string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedRequest{queue, body, correlationID, replyTo})
	return nil
}

func (b *fakeBus) Allocate(ctx context.Context, deliver func(correlationID string, body []byte)) (ReplyQueue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocErr != nil {
		return nil, b.allocErr
	}
	b.allocated++
	name := fmt.Sprintf("amq.gen-%d", b.allocated)
	b.deliver[name] = deliver
	return &fakeReplyQueue{name: name, bus: b}, nil
}

// reply injects a reply into the queue's deliver callback.
func (b *fakeBus) reply(queueName, correlationID string, body []byte) {
	b.mu.Lock()
	deliver := b.deliver[queueName]
	b.mu.Unlock()
	deliver(correlationID, body)
}

func (b *fakeBus) lastPublished(t *testing.T) publishedRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.published)
	return b.published[len(b.published)-1]
}

type fakeReplyQueue struct {
	name string
	bus  *fakeBus
}

func (q *fakeReplyQueue) Name() string {
	return q.name
}

func (q *fakeReplyQueue) Release(ctx context.Context) error {
	q.bus.mu.Lock()
	defer q.bus.mu.Unlock()
	q.bus.released[q.name] = true
	return nil
}

func TestRPCClientCall(t *testing.T) {
	t.Run("returns the correlated reply", func(t *testing.T) {
		bus := newFakeBus()
		client := NewRPCClient(bus, bus)

		done := make(chan struct{})
		var payload []byte
		var callErr error
		go func() {
			defer close(done)
			payload, callErr = client.Call(context.Background(), "course_queue", []byte(`{"courseIds":[1,2]}`), time.Second)
		}()

		// Wait for the request to hit the bus, then answer it.
		req := waitForPublish(t, bus)
		assert.Equal(t, "course_queue", req.queue)
		assert.NotEmpty(t, req.correlationID)
		assert.NotEmpty(t, req.replyTo)

		bus.reply(req.replyTo, req.correlationID, []byte(`[{"id":1},{"id":2}]`))

		<-done
		require.NoError(t, callErr)
		assert.Equal(t, []byte(`[{"id":1},{"id":2}]`), payload)
		assert.True(t, bus.released[req.replyTo], "reply queue not released")
	})

	t.Run("concurrent calls each receive their own reply", func(t *testing.T) {
		bus := newFakeBus()
		client := NewRPCClient(bus, bus)

		const calls = 20
		var wg sync.WaitGroup
		wg.Add(calls)

		results := make([][]byte, calls)
		errs := make([]error, calls)

		for i := 0; i < calls; i++ {
			go func(n int) {
				defer wg.Done()
				results[n], errs[n] = client.Call(context.Background(), "course_queue",
					[]byte(fmt.Sprintf(`{"call":%d}`, n)), 2*time.Second)
			}(i)
		}

		// Answer every published request, deliberately out of issue order.
		answered := make(map[string]bool)
		deadline := time.Now().Add(2 * time.Second)
		for len(answered) < calls && time.Now().Before(deadline) {
			bus.mu.Lock()
			pending := make([]publishedRequest, len(bus.published))
			copy(pending, bus.published)
			bus.mu.Unlock()

			for i := len(pending) - 1; i >= 0; i-- {
				req := pending[i]
				if answered[req.correlationID] {
					continue
				}
				answered[req.correlationID] = true
				bus.reply(req.replyTo, req.correlationID, append([]byte("echo:"), req.body...))
			}
			time.Sleep(time.Millisecond)
		}

		wg.Wait()
		for i := 0; i < calls; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, fmt.Sprintf(`echo:{"call":%d}`, i), string(results[i]),
				"call %d received a foreign reply", i)
		}
		assert.Equal(t, 0, client.Pending())
	})

	t.Run("times out when no reply arrives and still releases the queue", func(t *testing.T) {
		bus := newFakeBus()
		client := NewRPCClient(bus, bus)

		payload, err := client.Call(context.Background(), "course_queue", []byte(`{}`), 20*time.Millisecond)

		assert.Nil(t, payload)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrReplyTimeout)

		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, "course_queue", timeoutErr.Queue)

		req := bus.lastPublished(t)
		assert.True(t, bus.released[req.replyTo], "reply queue leaked after timeout")
		assert.Equal(t, 0, client.Pending())
	})

	t.Run("late reply after timeout is discarded", func(t *testing.T) {
		bus := newFakeBus()
		client := NewRPCClient(bus, bus)

		_, err := client.Call(context.Background(), "course_queue", []byte(`{}`), 20*time.Millisecond)
		require.ErrorIs(t, err, ErrReplyTimeout)

		// The reply arrives after the call already failed; it must not
		// resurrect anything.
		req := bus.lastPublished(t)
		bus.reply(req.replyTo, req.correlationID, []byte("too late"))

		assert.Equal(t, 0, client.Pending())
	})

	t.Run("reply with unknown correlation id does not resolve a call", func(t *testing.T) {
		bus := newFakeBus()
		client := NewRPCClient(bus, bus)

		done := make(chan struct{})
		var callErr error
		go func() {
			defer close(done)
			_, callErr = client.Call(context.Background(), "course_queue", []byte(`{}`), 100*time.Millisecond)
		}()

		req := waitForPublish(t, bus)
		bus.reply(req.replyTo, "some-other-id", []byte("not yours"))

		<-done
		assert.ErrorIs(t, callErr, ErrReplyTimeout)
	})

	t.Run("publish failure surfaces a transport error and cleans up", func(t *testing.T) {
		bus := newFakeBus()
		bus.publishErr = errors.New("broker unreachable")
		client := NewRPCClient(bus, bus)

		_, err := client.Call(context.Background(), "course_queue", []byte(`{}`), time.Second)

		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, "publish request", transportErr.Op)
		assert.Equal(t, 0, client.Pending())
	})

	t.Run("allocation failure surfaces a transport error", func(t *testing.T) {
		bus := newFakeBus()
		bus.allocErr = errors.New("no channel")
		client := NewRPCClient(bus, bus)

		_, err := client.Call(context.Background(), "course_queue", []byte(`{}`), time.Second)

		var transportErr *TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, "allocate reply queue", transportErr.Op)
	})

	t.Run("a stuck queue release is bounded by the release timeout", func(t *testing.T) {
		bus := &stuckReleaseBus{fakeBus: newFakeBus(), released: make(chan struct{})}
		client := NewRPCClient(bus, bus, WithReleaseTimeout(20*time.Millisecond))

		start := time.Now()
		_, err := client.Call(context.Background(), "course_queue", []byte(`{}`), 10*time.Millisecond)
		require.ErrorIs(t, err, ErrReplyTimeout)

		select {
		case <-bus.released:
		case <-time.After(time.Second):
			t.Fatal("release was never forced")
		}
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("context cancellation aborts the wait", func(t *testing.T) {
		bus := newFakeBus()
		client := NewRPCClient(bus, bus)

		ctx, cancel := context.WithCancel(context.Background())

		var callErr error
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, callErr = client.Call(ctx, "course_queue", []byte(`{}`), time.Minute)
		}()

		waitForPublish(t, bus)
		cancel()

		<-done
		assert.ErrorIs(t, callErr, context.Canceled)
		assert.Equal(t, 0, client.Pending())
	})
}

// stuckReleaseBus allocates reply queues whose Release hangs until the
// caller's release deadline forces it.
type stuckReleaseBus struct {
	*fakeBus
	released chan struct{}
}

func (b *stuckReleaseBus) Allocate(ctx context.Context, deliver func(correlationID string, body []byte)) (ReplyQueue, error) {
	rq, err := b.fakeBus.Allocate(ctx, deliver)
	if err != nil {
		return nil, err
	}
	return &stuckReplyQueue{inner: rq, released: b.released}, nil
}

type stuckReplyQueue struct {
	inner    ReplyQueue
	released chan struct{}
}

func (q *stuckReplyQueue) Name() string {
	return q.inner.Name()
}

func (q *stuckReplyQueue) Release(ctx context.Context) error {
	<-ctx.Done()
	close(q.released)
	return ctx.Err()
}

func waitForPublish(t *testing.T, bus *fakeBus) publishedRequest {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		bus.mu.Lock()
		n := len(bus.published)
		bus.mu.Unlock()
		if n > 0 {
			return bus.lastPublished(t)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("request was never published")
	return publishedRequest{}
}

// Guard against accidental blocking in dispatch.
func TestRPCClientDispatchNonBlocking(t *testing.T) {
	bus := newFakeBus()
	client := NewRPCClient(bus, bus)

	var dispatched atomic.Int32
	for i := 0; i < 100; i++ {
		client.dispatch("unknown", []byte("x"))
		dispatched.Add(1)
	}
	assert.Equal(t, int32(100), dispatched.Load())
}
