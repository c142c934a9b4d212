package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/returnsx/returnsx/internal/domain"
	"github.com/returnsx/returnsx/internal/identity"
	"github.com/returnsx/returnsx/internal/processor"
	"github.com/returnsx/returnsx/internal/repository"
	"github.com/returnsx/returnsx/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *processor.Processor
	salt      string
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, proc *processor.Processor, salt string, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		processor: proc,
		salt:      salt,
		version:   version,
	}
}

// CustomerContact carries the raw identifiers from an order webhook. They
// are hashed before anything else touches them and never stored.
type CustomerContact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// EventRequest is the request body for POST /events.
type EventRequest struct {
	// EventID is the platform's webhook delivery ID. Generated when absent,
	// which disables replay protection for that event.
	EventID string `json:"eventId,omitempty"`

	Kind       string  `json:"kind"`
	OrderID    string  `json:"orderId"`
	OrderValue float64 `json:"orderValue"`
	Currency   string  `json:"currency,omitempty"`

	OccurredAt time.Time `json:"occurredAt,omitempty"`

	// CustomerID is the opaque identity hash, for callers that hash
	// upstream. When absent, Customer contact info is hashed here.
	CustomerID string           `json:"customerId,omitempty"`
	Customer   *CustomerContact `json:"customer,omitempty"`
}

// IngestEvent handles POST /events requests. The event is folded into the
// customer profile and the updated assessment is returned synchronously.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind is required",
		})
		return
	}
	if req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "orderId is required",
		})
		return
	}

	customerID := req.CustomerID
	if customerID == "" {
		if req.Customer == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "customerId or customer contact info is required",
			})
			return
		}
		key, err := identity.CustomerKey(h.salt, req.Customer.Phone, req.Customer.Email)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "customer phone or email is required",
			})
			return
		}
		customerID = key
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	ev := &domain.OrderEvent{
		ID:         eventID,
		StoreID:    storeID,
		CustomerID: customerID,
		Kind:       domain.EventKind(req.Kind),
		OrderID:    req.OrderID,
		OrderValue: req.OrderValue,
		Currency:   req.Currency,
		OccurredAt: occurredAt,
	}

	result, err := h.processor.ProcessEvent(ctx, storeID, ev)
	if errors.Is(err, domain.ErrInvalidEvent) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		slog.Error("event ingestion failed",
			"event_id", eventID,
			"store_id", storeID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to process event",
		})
		return
	}

	status := http.StatusOK
	if !result.Duplicate {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// GetCustomer retrieves a customer profile.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)
	customerID := chi.URLParam(r, "id")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	prof, err := h.repo.GetProfile(ctx, storeID, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "customer not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get profile", "customer_id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load profile",
		})
		return
	}

	writeJSON(w, http.StatusOK, prof)
}

// GetAssessment recomputes the risk assessment for a customer. A customer
// with no history returns a zero-risk verdict rather than 404; checkout
// needs an answer for first-time buyers too.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)
	customerID := chi.URLParam(r, "id")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	result, err := h.processor.AssessCustomer(ctx, storeID, customerID)
	if err != nil {
		slog.Error("assessment failed", "customer_id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to assess customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListCustomerEvents retrieves a customer's order events.
func (h *Handler) ListCustomerEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)
	customerID := chi.URLParam(r, "id")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	since := time.Time{}
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC3339",
			})
			return
		}
		since = parsed
	}

	events, err := h.repo.ListEvents(ctx, storeID, customerID, since)
	if err != nil {
		slog.Error("failed to list events", "customer_id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list events",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// DeleteCustomer erases a customer's profile, events, and assessments.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)
	customerID := chi.URLParam(r, "id")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	err := h.processor.Erase(ctx, storeID, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "customer not found",
		})
		return
	}
	if err != nil {
		slog.Error("erasure failed", "customer_id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to erase customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "customer data erased",
	})
}

// GetRiskConfig returns the store's risk configuration, or the defaults when
// the store never saved one.
func (h *Handler) GetRiskConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)

	cfg, err := h.processor.RiskConfig(ctx, storeID)
	if err != nil {
		slog.Error("failed to load risk config", "store_id", storeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load risk configuration",
		})
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// PutRiskConfig saves the store's risk configuration.
func (h *Handler) PutRiskConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)

	var cfg domain.RiskConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	cfg.StoreID = storeID

	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveRiskConfig(ctx, storeID, &cfg); err != nil {
		slog.Error("failed to save risk config", "store_id", storeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save risk configuration",
		})
		return
	}

	slog.Info("risk config updated", "store_id", storeID)
	writeJSON(w, http.StatusOK, &cfg)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns the store's override rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	storeID := GetStoreID(r.Context())

	var loaded []*domain.OverrideRule
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.StoreID == storeID {
			loaded = append(loaded, rule)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetRule retrieves an override rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	storeID := GetStoreID(r.Context())
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID && rule.StoreID == storeID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating an override rule.
type CreateRuleRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Action      string `json:"action"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates an override rule for the requesting store and loads it
// into the engine immediately.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	ruleID := req.ID
	if ruleID == "" {
		ruleID = uuid.New().String()
	}

	rule := &domain.OverrideRule{
		ID:          ruleID,
		StoreID:     storeID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Action:      domain.Recommendation(req.Action),
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression and action before persisting
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveOverrideRule(ctx, storeID, rule); err != nil {
		slog.Error("failed to save override rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			slog.Error("failed to load override rule", "id", rule.ID, "error", err)
		}
	}

	slog.Info("override rule created", "id", rule.ID, "store_id", storeID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteRule disables an override rule and reloads the store's rules.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	err := h.repo.DeleteOverrideRule(ctx, storeID, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to delete override rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	if err := h.reloadStoreRules(ctx, storeID); err != nil {
		slog.Error("failed to reload rules after delete", "store_id", storeID, "error", err)
	}

	slog.Info("override rule deleted", "id", ruleID, "store_id", storeID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// ReloadRules reloads the store's override rules from the database into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := GetStoreID(ctx)

	if err := h.reloadStoreRules(ctx, storeID); err != nil {
		slog.Error("failed to reload rules", "store_id", storeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	count := 0
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.StoreID == storeID {
			count++
		}
	}

	slog.Info("override rules reloaded", "store_id", storeID, "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) reloadStoreRules(ctx context.Context, storeID string) error {
	dbRules, err := h.repo.ListOverrideRules(ctx, storeID)
	if err != nil {
		return err
	}
	return h.engine.ReloadStoreRules(storeID, dbRules)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
