package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/returnsx/returnsx/internal/bus"
	"github.com/returnsx/returnsx/internal/cache"
	"github.com/returnsx/returnsx/internal/domain"
	"github.com/returnsx/returnsx/internal/processor"
	"github.com/returnsx/returnsx/internal/repository"
	"github.com/returnsx/returnsx/internal/rules"
)

const testStoreID = "store-test"

func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "returnsx-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cacheImpl := cache.NewLRUCache(1000)
	busImpl := bus.NewChannelBus(100)
	t.Cleanup(func() { busImpl.Close() })

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}

	proc := processor.New(repo, cacheImpl, engine, busImpl)

	cfg := domain.ServerConfig{Host: "localhost", Port: 8080}
	return NewServer(cfg, repo, cacheImpl, busImpl, engine, proc, "test-salt", "test-v1")
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(StoreIDHeader, testStoreID)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body map[string]string
		decodeBody(t, rec, &body)
		if body["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", body["status"])
		}
		if body["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", body["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("NoStoreHeaderRequired", func(t *testing.T) {
		// Health endpoints sit outside the store middleware.
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 without store header, got %d", rec.Code)
		}
	})
}

func TestStoreMiddlewareRequired(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/customers/abc/assessment", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without %s header, got %d", StoreIDHeader, rec.Code)
	}
}

func TestIngestEvent(t *testing.T) {
	server := createTestServer(t)

	t.Run("HappyPath", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"eventId":    "ev-001",
			"kind":       "CREATED",
			"orderId":    "order-001",
			"orderValue": 1500.0,
			"currency":   "PKR",
			"customer":   map[string]string{"phone": "+92 300-1234567"},
		})

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var result processor.Result
		decodeBody(t, rec, &result)
		if result.Duplicate {
			t.Error("first delivery flagged as duplicate")
		}
		if result.Profile.TotalOrders != 1 {
			t.Errorf("expected TotalOrders 1, got %d", result.Profile.TotalOrders)
		}
		if len(result.Profile.CustomerID) != 64 {
			t.Errorf("expected 64-char identity hash, got %q", result.Profile.CustomerID)
		}
		if result.Assessment.Tier != domain.TierZeroRisk {
			t.Errorf("expected ZERO_RISK, got %s", result.Assessment.Tier)
		}
	})

	t.Run("DuplicateReturns200", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"eventId":    "ev-001",
			"kind":       "CREATED",
			"orderId":    "order-001",
			"orderValue": 1500.0,
			"customer":   map[string]string{"phone": "+92 300-1234567"},
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for replay, got %d", rec.Code)
		}

		var result processor.Result
		decodeBody(t, rec, &result)
		if !result.Duplicate {
			t.Error("replay not flagged as duplicate")
		}
		if result.Profile.TotalOrders != 1 {
			t.Errorf("replay moved counters: TotalOrders = %d", result.Profile.TotalOrders)
		}
	})

	t.Run("EquivalentPhoneFormatsShareProfile", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"eventId":    "ev-002",
			"kind":       "FULFILLED",
			"orderId":    "order-001",
			"orderValue": 1500.0,
			"customer":   map[string]string{"phone": "0092 3001234567"},
		})

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var result processor.Result
		decodeBody(t, rec, &result)
		if result.Profile.SuccessfulDeliveries != 1 {
			t.Errorf("expected delivery recorded on same profile, got %+v", result.Profile)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte("{nope")))
		req.Header.Set(StoreIDHeader, testStoreID)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnknownKind", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"kind":     "SHIPPED",
			"orderId":  "order-x",
			"customer": map[string]string{"phone": "03001234567"},
		})

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown kind, got %d", rec.Code)
		}
	})

	t.Run("MissingCustomer", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"kind":    "CREATED",
			"orderId": "order-x",
		})

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without customer info, got %d", rec.Code)
		}
	})

	t.Run("MissingOrderID", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"kind":     "CREATED",
			"customer": map[string]string{"phone": "03001234567"},
		})

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without orderId, got %d", rec.Code)
		}
	})

	t.Run("PreHashedCustomerID", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"eventId":    "ev-hashed",
			"kind":       "CREATED",
			"orderId":    "order-h",
			"customerId": "precomputed-hash",
		})

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var result processor.Result
		decodeBody(t, rec, &result)
		if result.Profile.CustomerID != "precomputed-hash" {
			t.Errorf("expected caller-supplied hash kept, got %q", result.Profile.CustomerID)
		}
	})
}

func TestCustomerEndpoints(t *testing.T) {
	server := createTestServer(t)

	// Seed one customer with a known hash.
	rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
		"eventId":    "seed-1",
		"kind":       "CREATED",
		"orderId":    "order-1",
		"orderValue": 800.0,
		"customerId": "cust-001",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seeding failed: %d %s", rec.Code, rec.Body.String())
	}

	t.Run("GetCustomer", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/customers/cust-001", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var prof domain.CustomerProfile
		decodeBody(t, rec, &prof)
		if prof.TotalOrders != 1 {
			t.Errorf("expected TotalOrders 1, got %d", prof.TotalOrders)
		}
	})

	t.Run("GetCustomerNotFound", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/customers/who", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("GetAssessmentUnknownCustomer", func(t *testing.T) {
		// Checkout needs a verdict for first-time buyers, so this is 200.
		rec := doRequest(t, server, http.MethodGet, "/customers/first-timer/assessment", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var result processor.Result
		decodeBody(t, rec, &result)
		if result.Assessment.Tier != domain.TierZeroRisk {
			t.Errorf("expected ZERO_RISK, got %s", result.Assessment.Tier)
		}
		if result.Assessment.Recommendation != domain.RecommendProceed {
			t.Errorf("expected PROCEED, got %s", result.Assessment.Recommendation)
		}
	})

	t.Run("ListEvents", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/customers/cust-001/events", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			Events []*domain.OrderEvent `json:"events"`
			Count  int                  `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 1 || len(body.Events) != 1 {
			t.Errorf("expected 1 event, got %d", body.Count)
		}
	})

	t.Run("ListEventsBadSince", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/customers/cust-001/events?since=yesterday", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad since, got %d", rec.Code)
		}
	})

	t.Run("DeleteCustomer", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodDelete, "/customers/cust-001", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = doRequest(t, server, http.MethodGet, "/customers/cust-001", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 after erase, got %d", rec.Code)
		}
	})

	t.Run("DeleteCustomerNotFound", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodDelete, "/customers/never", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestRiskConfigEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("GetDefaults", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/config", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var cfg domain.RiskConfig
		decodeBody(t, rec, &cfg)
		def := domain.DefaultRiskConfig()
		if cfg.SerialOffenderThreshold != def.SerialOffenderThreshold {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		custom := domain.DefaultRiskConfig()
		custom.SerialOffenderThreshold = 8

		rec := doRequest(t, server, http.MethodPut, "/config", custom)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, server, http.MethodGet, "/config", nil)
		var cfg domain.RiskConfig
		decodeBody(t, rec, &cfg)
		if cfg.SerialOffenderThreshold != 8 {
			t.Errorf("expected saved threshold 8, got %d", cfg.SerialOffenderThreshold)
		}
		if cfg.StoreID != testStoreID {
			t.Errorf("expected StoreID %s, got %s", testStoreID, cfg.StoreID)
		}
	})

	t.Run("PutInvalid", func(t *testing.T) {
		bad := domain.DefaultRiskConfig()
		bad.ZeroRiskMaxReturnRate = 1.5

		rec := doRequest(t, server, http.MethodPut, "/config", bad)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid config, got %d", rec.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateRule", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/rules", map[string]interface{}{
			"id":         "high-value",
			"name":       "review big COD orders",
			"expression": "order_value > 5000.0",
			"action":     "REVIEW",
			"enabled":    true,
		})

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var rule domain.OverrideRule
		decodeBody(t, rec, &rule)
		if rule.StoreID != testStoreID {
			t.Errorf("expected store stamped on rule, got %q", rule.StoreID)
		}
	})

	t.Run("CreatedRuleEscalates", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
			"eventId":    "rule-ev-1",
			"kind":       "CREATED",
			"orderId":    "order-big",
			"orderValue": 9000.0,
			"customerId": "cust-rich",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}

		var result processor.Result
		decodeBody(t, rec, &result)
		if result.Assessment.Recommendation != domain.RecommendReview {
			t.Errorf("expected REVIEW from override, got %s", result.Assessment.Recommendation)
		}
		if result.Assessment.OverrideRuleID != "high-value" {
			t.Errorf("expected override recorded, got %q", result.Assessment.OverrideRuleID)
		}
	})

	t.Run("ListRules", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/rules", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body struct {
			Rules []*domain.OverrideRule `json:"rules"`
			Count int                    `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 1 {
			t.Errorf("expected 1 rule, got %d", body.Count)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/rules/high-value", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("GetRuleNotFound", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/rules/missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("CreateRuleBadExpression", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "broken",
			"expression": "order_value >",
			"action":     "REVIEW",
			"enabled":    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad expression, got %d", rec.Code)
		}
	})

	t.Run("CreateRuleProceedAction", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/rules", map[string]interface{}{
			"name":       "soften",
			"expression": "score > 0.0",
			"action":     "PROCEED",
			"enabled":    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for PROCEED action, got %d", rec.Code)
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodDelete, "/rules/high-value", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = doRequest(t, server, http.MethodGet, "/rules", nil)
		var body struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &body)
		if body.Count != 0 {
			t.Errorf("expected 0 rules after delete, got %d", body.Count)
		}
	})

	t.Run("DeleteRuleNotFound", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodDelete, "/rules/missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("ReloadRules", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/rules/reload", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestStoreIsolationOverHTTP(t *testing.T) {
	server := createTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/events", map[string]interface{}{
		"eventId":    "iso-1",
		"kind":       "CANCELLED",
		"orderId":    "order-iso",
		"customerId": "cust-shared",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seeding failed: %d", rec.Code)
	}

	// Same customer hash queried from another store sees nothing.
	req := httptest.NewRequest(http.MethodGet, "/customers/cust-shared", nil)
	req.Header.Set(StoreIDHeader, "store-other")
	other := httptest.NewRecorder()
	server.Router().ServeHTTP(other, req)

	if other.Code != http.StatusNotFound {
		t.Errorf("expected 404 from another store, got %d", other.Code)
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("StoreMiddlewareExtracts", func(t *testing.T) {
		var gotStore string
		handler := StoreMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotStore = GetStoreID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(StoreIDHeader, "store-xyz")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if gotStore != "store-xyz" {
			t.Errorf("expected store-xyz, got %q", gotStore)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var traceID string
		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID = GetTraceID(r.Context())
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if traceID == "" {
			t.Error("expected trace ID in context")
		}
	})

	t.Run("RecoverMiddleware", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 after panic, got %d", rec.Code)
		}
	})

	t.Run("CORSPreflights", func(t *testing.T) {
		handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("preflight should not reach the handler")
		}))

		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204 for preflight, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got == "" {
			t.Error("expected CORS headers on preflight")
		}
	})
}
