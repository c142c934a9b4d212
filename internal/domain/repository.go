package domain

import (
	"context"
	"time"
)

// ApplyEventFunc folds one order event into a profile snapshot and returns
// the new snapshot. It must be pure: the repository may call it inside a
// database transaction and retry it.
type ApplyEventFunc func(CustomerProfile) (CustomerProfile, error)

// Repository defines the interface for data persistence.
// All methods require storeID for strict per-store isolation.
type Repository interface {
	// Profile operations.
	//
	// RecordEvent runs inside a single database transaction: it inserts the
	// event (rejecting replays of the same event ID with ErrDuplicateEvent),
	// loads the current profile snapshot (creating an empty one on first
	// contact), applies the fold, and persists the result. Concurrent
	// deliveries for the same customer serialize here, not in the caller.
	RecordEvent(ctx context.Context, storeID string, event *OrderEvent, apply ApplyEventFunc) (*CustomerProfile, error)
	GetProfile(ctx context.Context, storeID string, customerID string) (*CustomerProfile, error)
	ListEvents(ctx context.Context, storeID string, customerID string, since time.Time) ([]*OrderEvent, error)

	// DeleteCustomer removes the profile, its events, and its stored
	// assessments (data-erasure request).
	DeleteCustomer(ctx context.Context, storeID string, customerID string) error

	// Risk configuration operations.
	SaveRiskConfig(ctx context.Context, storeID string, cfg *RiskConfig) error
	GetRiskConfig(ctx context.Context, storeID string) (*RiskConfig, error)

	// Assessment snapshots (for dashboards; never authoritative).
	SaveAssessment(ctx context.Context, storeID string, a *RiskAssessment) error
	GetLatestAssessment(ctx context.Context, storeID string, customerID string) (*RiskAssessment, error)

	// Override rule operations.
	SaveOverrideRule(ctx context.Context, storeID string, rule *OverrideRule) error
	ListOverrideRules(ctx context.Context, storeID string) ([]*OverrideRule, error)
	DeleteOverrideRule(ctx context.Context, storeID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
