package messaging

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationRegistry(t *testing.T) {
	t.Run("Register returns unique ids", func(t *testing.T) {
		registry := NewCorrelationRegistry()

		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id, _ := registry.Register()
			assert.False(t, seen[id], "correlation id %s issued twice", id)
			seen[id] = true
		}
		assert.Equal(t, 100, registry.Pending())
	})

	t.Run("Resolve delivers payload to waiter and removes entry", func(t *testing.T) {
		registry := NewCorrelationRegistry()
		id, replyCh := registry.Register()

		ok := registry.Resolve(id, []byte(`{"answer":42}`))

		assert.True(t, ok)
		assert.Equal(t, 0, registry.Pending())
		assert.Equal(t, []byte(`{"answer":42}`), <-replyCh)
	})

	t.Run("second Resolve for same id is a no-op", func(t *testing.T) {
		registry := NewCorrelationRegistry()
		id, replyCh := registry.Register()

		assert.True(t, registry.Resolve(id, []byte("first")))
		assert.False(t, registry.Resolve(id, []byte("duplicate")))

		assert.Equal(t, []byte("first"), <-replyCh)
		select {
		case payload := <-replyCh:
			t.Fatalf("duplicate reply delivered: %s", payload)
		default:
		}
	})

	t.Run("Resolve for unknown id reports no pending request", func(t *testing.T) {
		registry := NewCorrelationRegistry()
		assert.False(t, registry.Resolve("never-registered", []byte("late")))
	})

	t.Run("Expire removes entry without delivering", func(t *testing.T) {
		registry := NewCorrelationRegistry()
		id, replyCh := registry.Register()

		assert.True(t, registry.Expire(id))
		assert.Equal(t, 0, registry.Pending())

		select {
		case payload := <-replyCh:
			t.Fatalf("expired request received payload: %s", payload)
		default:
		}
	})

	t.Run("Resolve after Expire is discarded", func(t *testing.T) {
		registry := NewCorrelationRegistry()
		id, _ := registry.Register()

		assert.True(t, registry.Expire(id))
		assert.False(t, registry.Resolve(id, []byte("too late")))
	})

	t.Run("Expire after Resolve reports already resolved", func(t *testing.T) {
		registry := NewCorrelationRegistry()
		id, replyCh := registry.Register()

		assert.True(t, registry.Resolve(id, []byte("won")))
		assert.False(t, registry.Expire(id))
		assert.Equal(t, []byte("won"), <-replyCh)
	})

	t.Run("concurrent register and resolve do not cross-interfere", func(t *testing.T) {
		registry := NewCorrelationRegistry()

		const calls = 50
		var wg sync.WaitGroup
		wg.Add(calls)

		for i := 0; i < calls; i++ {
			go func(n int) {
				defer wg.Done()

				id, replyCh := registry.Register()
				payload := []byte(fmt.Sprintf("reply-%d", n))

				go registry.Resolve(id, payload)

				assert.Equal(t, payload, <-replyCh)
			}(i)
		}

		wg.Wait()
		assert.Equal(t, 0, registry.Pending())
	})
}
