package users

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coursehub/users-service/internal/messaging"
	"github.com/coursehub/users-service/internal/metrics"
)

// Fulfillment applies purchase confirmations to persisted state: every
// purchased course becomes an owned entry and the buyer's cart is cleared.
// The message is acknowledged only after both writes succeed; until then the
// bus redelivers it. Both writes are idempotent, so redelivery after a crash
// mid-apply converges to the same state.
type Fulfillment struct {
	owned  OwnedStore
	cart   CartStore
	logger *slog.Logger
}

// FulfillmentOption configures the consumer.
type FulfillmentOption func(*Fulfillment)

// WithFulfillmentLogger sets the logger.
func WithFulfillmentLogger(logger *slog.Logger) FulfillmentOption {
	return func(f *Fulfillment) {
		f.logger = logger
	}
}

// NewFulfillment creates the purchase fulfillment consumer handler.
func NewFulfillment(owned OwnedStore, cart CartStore, options ...FulfillmentOption) *Fulfillment {
	f := &Fulfillment{
		owned:  owned,
		cart:   cart,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(f)
	}

	return f
}

// Handle processes one purchase confirmation delivery.
func (f *Fulfillment) Handle(ctx context.Context, d messaging.Delivery) error {
	var evt PurchaseEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		f.logger.Warn("dropping malformed purchase event",
			"messageId", d.MessageID,
			"error", err)
		metrics.MessagesDropped.Inc()
		return d.Ack()
	}
	if evt.UserID == 0 {
		f.logger.Warn("dropping purchase event without userId",
			"messageId", d.MessageID)
		metrics.MessagesDropped.Inc()
		return d.Ack()
	}

	if err := f.owned.Grant(ctx, evt.UserID, evt.CourseIDs); err != nil {
		f.logger.Error("failed to grant ownership, requeueing",
			"userId", evt.UserID,
			"redelivered", d.Redelivered,
			"error", err)
		return d.Requeue()
	}

	if err := f.cart.Clear(ctx, evt.UserID); err != nil {
		f.logger.Error("failed to clear cart, requeueing",
			"userId", evt.UserID,
			"redelivered", d.Redelivered,
			"error", err)
		return d.Requeue()
	}

	metrics.PurchasesApplied.Inc()
	f.logger.Info("purchase applied",
		"userId", evt.UserID,
		"courses", len(evt.CourseIDs))

	return d.Ack()
}
