package domain

import (
	"time"
)

// RiskTier is the coarse risk bucket derived from a customer's failure history.
type RiskTier string

const (
	TierZeroRisk   RiskTier = "ZERO_RISK"
	TierMediumRisk RiskTier = "MEDIUM_RISK"
	TierHighRisk   RiskTier = "HIGH_RISK"
)

// Recommendation is the checkout action derived from a risk tier.
type Recommendation string

const (
	RecommendProceed  Recommendation = "PROCEED"
	RecommendReview   Recommendation = "REVIEW"
	RecommendBlockCOD Recommendation = "BLOCK_COD"
)

// rank orders recommendations by severity for escalation-only overrides.
var recommendationRank = map[Recommendation]int{
	RecommendProceed:  0,
	RecommendReview:   1,
	RecommendBlockCOD: 2,
}

// MoreSevere reports whether r is a stricter action than other.
func (r Recommendation) MoreSevere(other Recommendation) bool {
	return recommendationRank[r] > recommendationRank[other]
}

// RiskAssessment is the computed verdict for one customer profile.
// It is derived state: every read recomputes it from the profile, so a
// stored copy is a snapshot for dashboards, never the source of truth.
type RiskAssessment struct {
	ID         string `json:"id,omitempty"`
	CustomerID string `json:"customerId"`
	StoreID    string `json:"storeId"`

	// Score is the 0-100 risk score, rounded to one decimal place.
	Score float64 `json:"score"`

	// Tier is assigned from raw counts and rates, independent of Score.
	Tier RiskTier `json:"tier"`

	// Confidence (0-100) signals how much order history backs the score.
	Confidence float64 `json:"confidence"`

	Recommendation Recommendation `json:"recommendation"`

	// OverrideRuleID names the store override rule that escalated the
	// recommendation, when one matched.
	OverrideRuleID string `json:"overrideRuleId,omitempty"`

	AssessedAt time.Time `json:"assessedAt"`
}
