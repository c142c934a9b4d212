// Package processor implements the order event ingestion pipeline.
// It folds webhook events into customer profiles, recomputes the risk
// assessment, applies store override rules, and publishes the result.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/returnsx/returnsx/internal/domain"
	"github.com/returnsx/returnsx/internal/profile"
	"github.com/returnsx/returnsx/internal/repository"
	"github.com/returnsx/returnsx/internal/rules"
	"github.com/returnsx/returnsx/internal/scoring"
)

// Processor drives events through the fold-score-override pipeline.
type Processor struct {
	repo  domain.Repository
	cache domain.Cache
	rules *rules.Engine
	bus   domain.EventBus

	// DedupWindow is how long a delivered event ID is remembered in the
	// cache. The event table's primary key backstops replays beyond it.
	DedupWindow time.Duration

	// AssessmentTTL bounds how stale a cached assessment snapshot may get.
	AssessmentTTL time.Duration
}

// Result is the outcome of processing one order event.
type Result struct {
	Profile    *domain.CustomerProfile `json:"profile"`
	Assessment *domain.RiskAssessment  `json:"assessment"`

	// Duplicate is set when the event ID was already recorded. The profile
	// and assessment then reflect the existing state, unchanged.
	Duplicate bool `json:"duplicate"`
}

// New creates a processor with default windows.
func New(repo domain.Repository, cache domain.Cache, rulesEngine *rules.Engine, bus domain.EventBus) *Processor {
	return &Processor{
		repo:          repo,
		cache:         cache,
		rules:         rulesEngine,
		bus:           bus,
		DedupWindow:   24 * time.Hour,
		AssessmentTTL: 5 * time.Minute,
	}
}

// ProcessEvent ingests one order event for a store. A replayed event ID is
// detected twice: first against the cache marker, then against the event
// table's primary key inside the recording transaction. Either way the
// counters move at most once per event.
func (p *Processor) ProcessEvent(ctx context.Context, storeID string, ev *domain.OrderEvent) (*Result, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: event is required", domain.ErrInvalidEvent)
	}
	if err := profile.ValidateEvent(*ev); err != nil {
		return nil, err
	}

	first, err := p.cache.MarkEventSeen(ctx, storeID, ev.ID, p.DedupWindow)
	if err != nil {
		// The durable guard below still holds; degrade, don't fail.
		slog.Warn("event dedup marker unavailable",
			"store_id", storeID,
			"event_id", ev.ID,
			"error", err,
		)
		first = true
	}
	if !first {
		return p.duplicateResult(ctx, storeID, ev)
	}

	updated, err := p.repo.RecordEvent(ctx, storeID, ev, func(current domain.CustomerProfile) (domain.CustomerProfile, error) {
		return profile.ApplyEvent(current, *ev)
	})
	if errors.Is(err, repository.ErrDuplicateEvent) {
		return p.duplicateResult(ctx, storeID, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	assessment, err := p.assess(ctx, storeID, *updated, ev.OrderValue)
	if err != nil {
		return nil, err
	}

	if err := p.repo.SaveAssessment(ctx, storeID, assessment); err != nil {
		slog.Warn("failed to save assessment snapshot",
			"store_id", storeID,
			"customer_id", assessment.CustomerID,
			"error", err,
		)
	}
	if err := p.cache.SetAssessment(ctx, storeID, assessment.CustomerID, assessment, p.AssessmentTTL); err != nil {
		slog.Warn("failed to cache assessment",
			"store_id", storeID,
			"customer_id", assessment.CustomerID,
			"error", err,
		)
	}

	p.publish(ctx, storeID, assessment)

	return &Result{Profile: updated, Assessment: assessment}, nil
}

// AssessCustomer recomputes the assessment for a customer from the current
// profile. A customer with no recorded events assesses as zero risk; the
// stored snapshots are never consulted for the verdict.
func (p *Processor) AssessCustomer(ctx context.Context, storeID string, customerID string) (*Result, error) {
	prof, err := p.repo.GetProfile(ctx, storeID, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		prof = &domain.CustomerProfile{
			CustomerID: customerID,
			StoreID:    storeID,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	assessment, err := p.assess(ctx, storeID, *prof, 0)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetAssessment(ctx, storeID, customerID, assessment, p.AssessmentTTL); err != nil {
		slog.Warn("failed to cache assessment",
			"store_id", storeID,
			"customer_id", customerID,
			"error", err,
		)
	}

	return &Result{Profile: prof, Assessment: assessment}, nil
}

// Erase removes a customer's profile, events, and assessments, plus any
// cached snapshot. Intended for data-erasure requests; there is no undo.
func (p *Processor) Erase(ctx context.Context, storeID string, customerID string) error {
	if err := p.repo.DeleteCustomer(ctx, storeID, customerID); err != nil {
		return err
	}

	if err := p.cache.Delete(ctx, storeID, "assessment:"+customerID); err != nil {
		slog.Warn("failed to evict cached assessment",
			"store_id", storeID,
			"customer_id", customerID,
			"error", err,
		)
	}

	slog.Info("customer data erased",
		"store_id", storeID,
		"customer_id", customerID,
	)
	return nil
}

// RiskConfig returns the store's risk configuration, falling back to the
// defaults when the store never saved one.
func (p *Processor) RiskConfig(ctx context.Context, storeID string) (*domain.RiskConfig, error) {
	cfg, err := p.repo.GetRiskConfig(ctx, storeID)
	if errors.Is(err, repository.ErrNotFound) {
		def := domain.DefaultRiskConfig()
		def.StoreID = storeID
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load risk config: %w", err)
	}
	return cfg, nil
}

func (p *Processor) assess(ctx context.Context, storeID string, prof domain.CustomerProfile, orderValue float64) (*domain.RiskAssessment, error) {
	cfg, err := p.RiskConfig(ctx, storeID)
	if err != nil {
		return nil, err
	}

	assessment, err := scoring.Assess(prof, *cfg)
	if err != nil {
		return nil, fmt.Errorf("scoring failed: %w", err)
	}
	assessment.ID = uuid.New().String()

	if p.rules != nil {
		rec, ruleID := p.rules.Apply(&assessment, &prof, orderValue)
		if ruleID != "" {
			slog.Info("override rule escalated recommendation",
				"store_id", storeID,
				"customer_id", prof.CustomerID,
				"rule_id", ruleID,
				"from", assessment.Recommendation,
				"to", rec,
			)
		}
		assessment.Recommendation = rec
		assessment.OverrideRuleID = ruleID
	}

	return &assessment, nil
}

// duplicateResult reassesses the current state without touching counters.
func (p *Processor) duplicateResult(ctx context.Context, storeID string, ev *domain.OrderEvent) (*Result, error) {
	slog.Info("duplicate event ignored",
		"store_id", storeID,
		"event_id", ev.ID,
		"customer_id", ev.CustomerID,
	)

	res, err := p.AssessCustomer(ctx, storeID, ev.CustomerID)
	if err != nil {
		return nil, err
	}
	res.Duplicate = true
	return res, nil
}

func (p *Processor) publish(ctx context.Context, storeID string, a *domain.RiskAssessment) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		slog.Error("failed to marshal assessment", "error", err)
		return
	}

	if err := p.bus.Publish(ctx, storeID, domain.TopicAssessment, payload); err != nil {
		slog.Warn("failed to publish assessment",
			"store_id", storeID,
			"customer_id", a.CustomerID,
			"error", err,
		)
	}

	if a.Recommendation == domain.RecommendBlockCOD {
		if err := p.bus.Publish(ctx, storeID, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert",
				"store_id", storeID,
				"customer_id", a.CustomerID,
				"error", err,
			)
		}
	}
}
