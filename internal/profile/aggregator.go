// Package profile folds order-lifecycle events into customer profile
// counters. It carries no numeric policy; scoring lives in internal/scoring.
package profile

import (
	"fmt"

	"github.com/returnsx/returnsx/internal/domain"
)

// ValidateEvent checks an order event before it touches any counters.
func ValidateEvent(ev domain.OrderEvent) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: unrecognized kind %q", domain.ErrInvalidEvent, ev.Kind)
	}
	if ev.OrderValue < 0 {
		return fmt.Errorf("%w: negative order value %.2f", domain.ErrInvalidEvent, ev.OrderValue)
	}
	if ev.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", domain.ErrInvalidEvent)
	}
	return nil
}

// ApplyEvent folds one order event into a profile and returns the updated
// copy. It is a pure function over value-typed inputs: the caller's profile
// is never mutated, and a validation failure returns it unchanged.
//
// ApplyEvent assumes each event is applied exactly once. Deduplication of
// repeated webhook deliveries is the ingestion layer's responsibility; this
// function will happily double-count a replayed event.
func ApplyEvent(p domain.CustomerProfile, ev domain.OrderEvent) (domain.CustomerProfile, error) {
	if err := ValidateEvent(ev); err != nil {
		return p, err
	}

	switch ev.Kind {
	case domain.EventCreated:
		// Outcome unknown at creation: only the order count moves.
		p.TotalOrders++
	case domain.EventCancelled, domain.EventRefunded:
		p.FailedAttempts++
		p.TotalValue += ev.OrderValue
	case domain.EventFulfilled:
		p.SuccessfulDeliveries++
		p.TotalValue += ev.OrderValue
	}

	// Events may arrive out of order; keep the max so retries and late
	// deliveries never move the clock backwards.
	if ev.OccurredAt.After(p.LastEventAt) {
		p.LastEventAt = ev.OccurredAt
	}

	return p, nil
}
