package messaging

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingRequest is one in-flight request awaiting its reply.
type pendingRequest struct {
	correlationID string
	createdAt     time.Time
	reply         chan []byte
}

// CorrelationRegistry tracks in-flight request/reply pairs by correlation id.
// Each id reaches exactly one terminal outcome: resolved with a payload, or
// expired. A second resolve, or a resolve after expiry, is a no-op.
type CorrelationRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewCorrelationRegistry creates an empty registry.
func NewCorrelationRegistry() *CorrelationRegistry {
	return &CorrelationRegistry{
		pending: make(map[string]*pendingRequest),
	}
}

// Register creates a pending request and returns its correlation id together
// with the channel the reply payload will be delivered on. The channel is
// buffered so a resolver never blocks on a slow waiter.
func (r *CorrelationRegistry) Register() (string, <-chan []byte) {
	p := &pendingRequest{
		correlationID: uuid.New().String(),
		createdAt:     time.Now(),
		reply:         make(chan []byte, 1),
	}

	r.mu.Lock()
	r.pending[p.correlationID] = p
	r.mu.Unlock()

	return p.correlationID, p.reply
}

// Resolve delivers payload to the waiter registered under correlationID and
// removes the entry. It reports whether a pending request was found; false
// means the reply is a duplicate or arrived after expiry and must be
// discarded by the caller.
func (r *CorrelationRegistry) Resolve(correlationID string, payload []byte) bool {
	r.mu.Lock()
	p, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	p.reply <- payload
	return true
}

// Expire removes the entry for correlationID without delivering a payload.
// It reports whether an entry was removed; false means the request already
// resolved, in which case the reply channel holds the payload.
func (r *CorrelationRegistry) Expire(correlationID string) bool {
	r.mu.Lock()
	_, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
	}
	r.mu.Unlock()

	return ok
}

// Pending returns the number of in-flight requests.
func (r *CorrelationRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
