// Package domain defines the core types and interfaces for ReturnsX.
package domain

import (
	"time"
)

// EventKind classifies an order-lifecycle event.
type EventKind string

const (
	// EventCreated marks a new order whose outcome is not yet known.
	EventCreated EventKind = "CREATED"

	// EventCancelled marks an order the customer refused or cancelled.
	EventCancelled EventKind = "CANCELLED"

	// EventFulfilled marks an order delivered and accepted.
	EventFulfilled EventKind = "FULFILLED"

	// EventRefunded marks an order returned after delivery (chargeback, COD refusal).
	EventRefunded EventKind = "REFUNDED"
)

// Valid reports whether k is a recognized event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventCancelled, EventFulfilled, EventRefunded:
		return true
	}
	return false
}

// OrderEvent is a single order-lifecycle event for a customer identity.
// The ingestion layer authenticates and deduplicates events before they
// reach the aggregator; the ID is the platform's webhook delivery ID and
// doubles as the replay-protection key.
type OrderEvent struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"storeId"`
	CustomerID string    `json:"customerId"` // opaque identity hash
	Kind       EventKind `json:"kind"`
	OrderID    string    `json:"orderId"`
	OrderValue float64   `json:"orderValue"`
	Currency   string    `json:"currency,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// CustomerProfile holds the running order-outcome counters for one
// customer identity within one store.
//
// Invariant: FailedAttempts + SuccessfulDeliveries <= TotalOrders.
// An order may be created but not yet resolved either way.
type CustomerProfile struct {
	CustomerID string `json:"customerId"`
	StoreID    string `json:"storeId"`

	// TotalOrders counts distinct orders ever created.
	TotalOrders int `json:"totalOrders"`

	// FailedAttempts counts cancelled or refunded orders.
	FailedAttempts int `json:"failedAttempts"`

	// SuccessfulDeliveries counts fulfilled and accepted orders.
	SuccessfulDeliveries int `json:"successfulDeliveries"`

	// TotalValue is the cumulative monetary value of resolved orders.
	TotalValue float64 `json:"totalValue"`

	// LastEventAt is the most recent event timestamp observed, kept as a
	// max so out-of-order deliveries never move it backwards.
	LastEventAt time.Time `json:"lastEventAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FailureRate returns FailedAttempts / TotalOrders, or 0 for an empty profile.
func (p CustomerProfile) FailureRate() float64 {
	if p.TotalOrders == 0 {
		return 0
	}
	return float64(p.FailedAttempts) / float64(p.TotalOrders)
}
