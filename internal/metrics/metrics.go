// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCRequests counts outbound request/reply calls.
	RPCRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "users_rpc_requests_total",
		Help: "Outbound RPC calls issued over the message bus.",
	})

	// RPCTimeouts counts calls that expired without a reply.
	RPCTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "users_rpc_timeouts_total",
		Help: "RPC calls that timed out waiting for a reply.",
	})

	// PurchasesApplied counts purchase events applied to the store.
	PurchasesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "users_purchases_applied_total",
		Help: "Purchase confirmation events applied to persisted state.",
	})

	// MessagesDropped counts inbound messages discarded by policy
	// (malformed bodies, unmatched or late replies).
	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "users_messages_dropped_total",
		Help: "Inbound messages dropped instead of processed.",
	})
)
