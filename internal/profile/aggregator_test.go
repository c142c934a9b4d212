package profile

import (
	"errors"
	"testing"
	"time"

	"github.com/returnsx/returnsx/internal/domain"
)

func makeEvent(kind domain.EventKind, value float64) domain.OrderEvent {
	return domain.OrderEvent{
		ID:         "ev-1",
		StoreID:    "store-001",
		CustomerID: "cust-001",
		Kind:       kind,
		OrderID:    "order-001",
		OrderValue: value,
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApplyEventKinds(t *testing.T) {
	tests := []struct {
		name       string
		kind       domain.EventKind
		orders     int
		failed     int
		delivered  int
		totalValue float64
	}{
		{"Created", domain.EventCreated, 1, 0, 0, 0},
		{"Cancelled", domain.EventCancelled, 0, 1, 0, 450},
		{"Refunded", domain.EventRefunded, 0, 1, 0, 450},
		{"Fulfilled", domain.EventFulfilled, 0, 0, 1, 450},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ApplyEvent(domain.CustomerProfile{}, makeEvent(tt.kind, 450))
			if err != nil {
				t.Fatalf("ApplyEvent failed: %v", err)
			}
			if p.TotalOrders != tt.orders {
				t.Errorf("TotalOrders = %d, want %d", p.TotalOrders, tt.orders)
			}
			if p.FailedAttempts != tt.failed {
				t.Errorf("FailedAttempts = %d, want %d", p.FailedAttempts, tt.failed)
			}
			if p.SuccessfulDeliveries != tt.delivered {
				t.Errorf("SuccessfulDeliveries = %d, want %d", p.SuccessfulDeliveries, tt.delivered)
			}
			if p.TotalValue != tt.totalValue {
				t.Errorf("TotalValue = %.2f, want %.2f", p.TotalValue, tt.totalValue)
			}
		})
	}
}

func TestApplyEventOrderLifecycle(t *testing.T) {
	// CREATED then CANCELLED: one order, one failure.
	p, err := ApplyEvent(domain.CustomerProfile{}, makeEvent(domain.EventCreated, 0))
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	p, err = ApplyEvent(p, makeEvent(domain.EventCancelled, 300))
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	if p.TotalOrders != 1 {
		t.Errorf("TotalOrders = %d, want 1", p.TotalOrders)
	}
	if p.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, want 1", p.FailedAttempts)
	}
}

func TestApplyEventDoesNotMutateInput(t *testing.T) {
	original := domain.CustomerProfile{TotalOrders: 5, FailedAttempts: 2}

	if _, err := ApplyEvent(original, makeEvent(domain.EventCreated, 0)); err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	if original.TotalOrders != 5 || original.FailedAttempts != 2 {
		t.Errorf("input profile mutated: %+v", original)
	}
}

func TestApplyEventOutOfOrderTimestamps(t *testing.T) {
	later := makeEvent(domain.EventCreated, 0)
	later.OccurredAt = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	earlier := makeEvent(domain.EventFulfilled, 100)
	earlier.OccurredAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	p, err := ApplyEvent(domain.CustomerProfile{}, later)
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	p, err = ApplyEvent(p, earlier)
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}

	// A late delivery must not move the clock backwards.
	if !p.LastEventAt.Equal(later.OccurredAt) {
		t.Errorf("LastEventAt = %v, want %v", p.LastEventAt, later.OccurredAt)
	}
}

func TestValidateEvent(t *testing.T) {
	t.Run("UnknownKind", func(t *testing.T) {
		ev := makeEvent("SHIPPED", 100)
		if err := ValidateEvent(ev); !errors.Is(err, domain.ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got: %v", err)
		}
	})

	t.Run("NegativeValue", func(t *testing.T) {
		ev := makeEvent(domain.EventFulfilled, -50)
		if err := ValidateEvent(ev); !errors.Is(err, domain.ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got: %v", err)
		}
	})

	t.Run("MissingTimestamp", func(t *testing.T) {
		ev := makeEvent(domain.EventCreated, 0)
		ev.OccurredAt = time.Time{}
		if err := ValidateEvent(ev); !errors.Is(err, domain.ErrInvalidEvent) {
			t.Errorf("expected ErrInvalidEvent, got: %v", err)
		}
	})

	t.Run("ValidEvent", func(t *testing.T) {
		if err := ValidateEvent(makeEvent(domain.EventCreated, 100)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestApplyEventRejectsInvalid(t *testing.T) {
	before := domain.CustomerProfile{TotalOrders: 3}

	after, err := ApplyEvent(before, makeEvent("BOGUS", 100))
	if !errors.Is(err, domain.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got: %v", err)
	}
	// Counters untouched on rejection.
	if after.TotalOrders != before.TotalOrders {
		t.Errorf("profile changed on invalid event: %+v", after)
	}
}
