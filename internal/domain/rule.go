package domain

import "time"

// OverrideRule is a store-defined escalation rule evaluated after scoring.
// The expression is a CEL formula over the computed assessment and profile
// (score, tier, failed_attempts, total_orders, total_value, confidence) that
// must return bool. A matching rule escalates the recommendation to Action;
// overrides can never relax the documented scoring policy.
type OverrideRule struct {
	ID          string `json:"id"`
	StoreID     string `json:"storeId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is the CEL formula to evaluate.
	Expression string `json:"expression"`

	// Action is the recommendation applied on a match: REVIEW or BLOCK_COD.
	Action Recommendation `json:"action"`

	// Whether the rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
