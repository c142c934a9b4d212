package domain

import (
	"fmt"
	"time"
)

// RiskConfig holds the per-store tunable scoring thresholds. It is passed
// explicitly into every scoring call; there is no global mutable policy.
type RiskConfig struct {
	StoreID string `json:"storeId,omitempty"`

	// Zero-risk tier membership: at most this many failures AND a return
	// rate at or below this fraction.
	ZeroRiskMaxFailed       int     `json:"zeroRiskMaxFailed"`
	ZeroRiskMaxReturnRate   float64 `json:"zeroRiskMaxReturnRate"`
	MediumRiskMaxFailed     int     `json:"mediumRiskMaxFailed"`
	MediumRiskMaxReturnRate float64 `json:"mediumRiskMaxReturnRate"`

	// NewCustomerGraceOrders dampens the score for customers with at most
	// this many orders.
	NewCustomerGraceOrders int `json:"newCustomerGraceOrders"`

	// SerialOffenderThreshold is the failure count that triggers the flat
	// serial-offender penalty.
	SerialOffenderThreshold int `json:"serialOffenderThreshold"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// DefaultRiskConfig returns the stock thresholds applied to stores that have
// not tuned their own.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		ZeroRiskMaxFailed:       2,
		ZeroRiskMaxReturnRate:   0.10,
		MediumRiskMaxFailed:     5,
		MediumRiskMaxReturnRate: 0.50,
		NewCustomerGraceOrders:  3,
		SerialOffenderThreshold: 5,
	}
}

// Validate rejects configurations that would silently miscompute a tier:
// negative thresholds, rate fractions outside [0,1], or medium-tier limits
// below the zero-tier limits.
func (c RiskConfig) Validate() error {
	if c.ZeroRiskMaxFailed < 0 || c.MediumRiskMaxFailed < 0 {
		return fmt.Errorf("%w: failure thresholds must be non-negative", ErrInvalidConfig)
	}
	if c.NewCustomerGraceOrders < 0 || c.SerialOffenderThreshold < 0 {
		return fmt.Errorf("%w: order thresholds must be non-negative", ErrInvalidConfig)
	}
	if c.ZeroRiskMaxReturnRate < 0 || c.ZeroRiskMaxReturnRate > 1 {
		return fmt.Errorf("%w: zeroRiskMaxReturnRate must be in [0,1]", ErrInvalidConfig)
	}
	if c.MediumRiskMaxReturnRate < 0 || c.MediumRiskMaxReturnRate > 1 {
		return fmt.Errorf("%w: mediumRiskMaxReturnRate must be in [0,1]", ErrInvalidConfig)
	}
	if c.MediumRiskMaxFailed < c.ZeroRiskMaxFailed {
		return fmt.Errorf("%w: mediumRiskMaxFailed must be >= zeroRiskMaxFailed", ErrInvalidConfig)
	}
	if c.MediumRiskMaxReturnRate < c.ZeroRiskMaxReturnRate {
		return fmt.Errorf("%w: mediumRiskMaxReturnRate must be >= zeroRiskMaxReturnRate", ErrInvalidConfig)
	}
	return nil
}
