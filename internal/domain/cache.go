package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require storeID for strict per-store isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, storeID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, storeID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, storeID string, key string) error

	// GetAssessment retrieves a cached assessment snapshot.
	GetAssessment(ctx context.Context, storeID string, customerID string) (*RiskAssessment, error)

	// SetAssessment caches an assessment snapshot.
	SetAssessment(ctx context.Context, storeID string, customerID string, a *RiskAssessment, ttl time.Duration) error

	// MarkEventSeen records a webhook delivery ID for replay protection.
	// Returns true if the ID was not seen within the window (first delivery),
	// false if it is a replay.
	MarkEventSeen(ctx context.Context, storeID string, eventID string, window time.Duration) (bool, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
