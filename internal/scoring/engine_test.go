package scoring

import (
	"errors"
	"testing"

	"github.com/returnsx/returnsx/internal/domain"
)

func assess(t *testing.T, p domain.CustomerProfile) domain.RiskAssessment {
	t.Helper()
	a, err := Assess(p, domain.DefaultRiskConfig())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	return a
}

func TestAssessZeroOrders(t *testing.T) {
	a := assess(t, domain.CustomerProfile{CustomerID: "c1", StoreID: "s1"})

	if a.Score != 0 {
		t.Errorf("expected score 0, got %.1f", a.Score)
	}
	if a.Tier != domain.TierZeroRisk {
		t.Errorf("expected ZERO_RISK, got %s", a.Tier)
	}
	if a.Confidence != 0 {
		t.Errorf("expected confidence 0, got %.1f", a.Confidence)
	}
	if a.Recommendation != domain.RecommendProceed {
		t.Errorf("expected PROCEED, got %s", a.Recommendation)
	}
}

func TestAssessTiers(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.CustomerProfile
		tier    domain.RiskTier
		rec     domain.Recommendation
	}{
		{
			name:    "SingleSuccessfulOrder",
			profile: domain.CustomerProfile{TotalOrders: 1, FailedAttempts: 0, SuccessfulDeliveries: 1},
			tier:    domain.TierZeroRisk,
			rec:     domain.RecommendProceed,
		},
		{
			name:    "EstablishedCustomerOneFailure",
			profile: domain.CustomerProfile{TotalOrders: 10, FailedAttempts: 1, SuccessfulDeliveries: 9},
			tier:    domain.TierZeroRisk,
			rec:     domain.RecommendProceed,
		},
		{
			name:    "HalfFailedOrders",
			profile: domain.CustomerProfile{TotalOrders: 8, FailedAttempts: 4, SuccessfulDeliveries: 4},
			tier:    domain.TierMediumRisk,
			rec:     domain.RecommendReview,
		},
		{
			name:    "EveryOrderFailed",
			profile: domain.CustomerProfile{TotalOrders: 6, FailedAttempts: 6, SuccessfulDeliveries: 0},
			tier:    domain.TierHighRisk,
			rec:     domain.RecommendBlockCOD,
		},
		{
			name:    "ThreeFailuresModerateRate",
			profile: domain.CustomerProfile{TotalOrders: 10, FailedAttempts: 3, SuccessfulDeliveries: 7},
			tier:    domain.TierMediumRisk,
			rec:     domain.RecommendReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assess(t, tt.profile)
			if a.Tier != tt.tier {
				t.Errorf("expected tier %s, got %s", tt.tier, a.Tier)
			}
			if a.Recommendation != tt.rec {
				t.Errorf("expected recommendation %s, got %s", tt.rec, a.Recommendation)
			}
		})
	}
}

func TestAssessScoreValues(t *testing.T) {
	t.Run("LowFailureRate", func(t *testing.T) {
		// 1/10 failed: 0.1*40 + 0.1*30 = 7.0, no penalties
		a := assess(t, domain.CustomerProfile{TotalOrders: 10, FailedAttempts: 1, SuccessfulDeliveries: 9})
		if a.Score != 7.0 {
			t.Errorf("expected score 7.0, got %.1f", a.Score)
		}
	})

	t.Run("HalfFailed", func(t *testing.T) {
		// 4/8 failed: 20 + 15 = 35, no penalties (4 < serial threshold, 8 > 5 orders)
		a := assess(t, domain.CustomerProfile{TotalOrders: 8, FailedAttempts: 4, SuccessfulDeliveries: 4})
		if a.Score != 35.0 {
			t.Errorf("expected score 35.0, got %.1f", a.Score)
		}
	})

	t.Run("SerialOffender", func(t *testing.T) {
		// 6/6 failed: 40 + 30 + 20 serial = 90, no grace (6 > 3 orders)
		a := assess(t, domain.CustomerProfile{TotalOrders: 6, FailedAttempts: 6})
		if a.Score != 90.0 {
			t.Errorf("expected score 90.0, got %.1f", a.Score)
		}
	})

	t.Run("EarlyFailureWithDampening", func(t *testing.T) {
		// 3/3 failed: 40 + 30 + 15 early = 85, then *0.7 grace = 59.5
		a := assess(t, domain.CustomerProfile{TotalOrders: 3, FailedAttempts: 3})
		if a.Score != 59.5 {
			t.Errorf("expected score 59.5, got %.1f", a.Score)
		}
	})

	t.Run("ClampedAt100", func(t *testing.T) {
		// 5/5 failed: 40 + 30 + 20 serial + 15 early = 105 -> clamp 100
		a := assess(t, domain.CustomerProfile{TotalOrders: 5, FailedAttempts: 5})
		if a.Score != 100.0 {
			t.Errorf("expected score 100.0, got %.1f", a.Score)
		}
	})
}

func TestAssessConfidence(t *testing.T) {
	tests := []struct {
		orders     int
		confidence float64
	}{
		{1, 10},
		{3, 30},
		{5, 50},
		{10, 100},
		{25, 100},
	}

	for _, tt := range tests {
		a := assess(t, domain.CustomerProfile{TotalOrders: tt.orders})
		if a.Confidence != tt.confidence {
			t.Errorf("orders=%d: expected confidence %.0f, got %.1f", tt.orders, tt.confidence, a.Confidence)
		}
	}
}

func TestAssessScoreBounds(t *testing.T) {
	cfg := domain.DefaultRiskConfig()

	for orders := 0; orders <= 20; orders++ {
		for failed := 0; failed <= orders; failed++ {
			a, err := Assess(domain.CustomerProfile{TotalOrders: orders, FailedAttempts: failed}, cfg)
			if err != nil {
				t.Fatalf("Assess(%d, %d) failed: %v", orders, failed, err)
			}
			if a.Score < 0 || a.Score > 100 {
				t.Errorf("score out of bounds for orders=%d failed=%d: %.1f", orders, failed, a.Score)
			}
			if a.Confidence < 0 || a.Confidence > 100 {
				t.Errorf("confidence out of bounds for orders=%d: %.1f", orders, a.Confidence)
			}
		}
	}
}

func TestAssessMonotonicity(t *testing.T) {
	// Holding orders fixed, more failures never lowers the score.
	for _, orders := range []int{1, 3, 5, 8, 12} {
		prev := -1.0
		for failed := 0; failed <= orders; failed++ {
			a := assess(t, domain.CustomerProfile{TotalOrders: orders, FailedAttempts: failed})
			if a.Score < prev {
				t.Errorf("score dropped at orders=%d failed=%d: %.1f < %.1f", orders, failed, a.Score, prev)
			}
			prev = a.Score
		}
	}
}

func TestAssessNewCustomerDampening(t *testing.T) {
	// Same failure rate; the customer inside the grace window scores lower.
	young := assess(t, domain.CustomerProfile{TotalOrders: 2, FailedAttempts: 1})
	established := assess(t, domain.CustomerProfile{TotalOrders: 8, FailedAttempts: 4})

	if young.Score >= established.Score {
		t.Errorf("expected dampened score for new customer: %.1f >= %.1f", young.Score, established.Score)
	}
}

func TestAssessCleanHistoryTier(t *testing.T) {
	// Zero failures must stay ZERO_RISK no matter the volume.
	for _, orders := range []int{1, 10, 100} {
		a := assess(t, domain.CustomerProfile{TotalOrders: orders, SuccessfulDeliveries: orders})
		if a.Tier != domain.TierZeroRisk {
			t.Errorf("orders=%d: expected ZERO_RISK, got %s", orders, a.Tier)
		}
	}
}

func TestAssessInvalidConfig(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	cfg.ZeroRiskMaxFailed = -1

	_, err := Assess(domain.CustomerProfile{TotalOrders: 5}, cfg)
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}

func TestAssessCustomThresholds(t *testing.T) {
	// A strict store config reclassifies a borderline customer.
	cfg := domain.DefaultRiskConfig()
	cfg.MediumRiskMaxFailed = 2
	cfg.MediumRiskMaxReturnRate = 0.25

	a, err := Assess(domain.CustomerProfile{TotalOrders: 8, FailedAttempts: 4, SuccessfulDeliveries: 4}, cfg)
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if a.Tier != domain.TierHighRisk {
		t.Errorf("expected HIGH_RISK under strict config, got %s", a.Tier)
	}
}

func TestRecommendationFor(t *testing.T) {
	tests := []struct {
		tier domain.RiskTier
		rec  domain.Recommendation
	}{
		{domain.TierZeroRisk, domain.RecommendProceed},
		{domain.TierMediumRisk, domain.RecommendReview},
		{domain.TierHighRisk, domain.RecommendBlockCOD},
	}

	for _, tt := range tests {
		if got := RecommendationFor(tt.tier); got != tt.rec {
			t.Errorf("RecommendationFor(%s) = %s, want %s", tt.tier, got, tt.rec)
		}
	}
}
