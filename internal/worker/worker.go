// Package worker provides async order event processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/returnsx/returnsx/internal/domain"
	"github.com/returnsx/returnsx/internal/processor"
)

// Worker consumes order events from the EventBus and drives them through
// the ingestion pipeline.
type Worker struct {
	bus       domain.EventBus
	processor *processor.Processor

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// StoreIDs is the list of stores to process (empty = global subscription)
	StoreIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, proc *processor.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: proc,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing events for the given stores.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.StoreIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, storeID := range cfg.StoreIDs {
		if err := w.startStoreWorker(storeID); err != nil {
			slog.Error("failed to start worker for store",
				"store_id", storeID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"store_count", len(cfg.StoreIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all stores (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicOrderEvent, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startStoreWorker starts a worker for a specific store.
func (w *Worker) startStoreWorker(storeID string) error {
	sub, err := w.bus.Subscribe(w.ctx, storeID, domain.TopicOrderEvent, func(ctx context.Context, msg *domain.Message) error {
		return w.processEvent(ctx, storeID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("store worker started",
		"store_id", storeID,
		"topic", domain.TopicOrderEvent,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processEvent(ctx, msg.StoreID, msg)
}

// processEvent folds one order event through the ingestion pipeline.
func (w *Worker) processEvent(ctx context.Context, storeID string, msg *domain.Message) error {
	start := time.Now()

	var ev domain.OrderEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse order event message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use event store if provided
	if ev.StoreID != "" {
		storeID = ev.StoreID
	}

	res, err := w.processor.ProcessEvent(ctx, storeID, &ev)
	if err != nil {
		slog.Error("event processing failed",
			"event_id", ev.ID,
			"store_id", storeID,
			"error", err,
		)
		return err
	}

	slog.Info("order event processed",
		"event_id", ev.ID,
		"store_id", storeID,
		"customer_id", ev.CustomerID,
		"kind", ev.Kind,
		"duplicate", res.Duplicate,
		"tier", res.Assessment.Tier,
		"score", res.Assessment.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
