// Package scoring implements the COD risk scoring policy.
//
// Assess is a pure function of a profile and a configuration: no I/O, no
// shared state, safe from any number of concurrent callers. The score is a
// weighted sum of capped components; the tier is assigned from raw counts and
// rates independently of the score, so the two can disagree at the margins.
// That redundancy is deliberate: a tuning mistake in one path does not
// silently unlock COD in the other.
package scoring

import (
	"math"
	"time"

	"github.com/returnsx/returnsx/internal/domain"
)

// Score component weights and flat penalties.
const (
	failureRateWeight = 40.0
	returnRateWeight  = 30.0

	serialOffenderPenalty = 20.0

	// Customers who fail most of their first few orders get an extra
	// penalty before the volume-based components can catch up.
	earlyFailurePenalty   = 15.0
	earlyFailureMinFailed = 3
	earlyFailureMaxOrders = 5

	newCustomerDampening = 0.7

	// Confidence saturates once this many orders back the score.
	confidenceFullOrders = 10
)

// Assess computes the risk assessment for a customer profile. The
// configuration is validated before any math runs; an invalid configuration
// returns domain.ErrInvalidConfig and never a partial assessment.
func Assess(p domain.CustomerProfile, cfg domain.RiskConfig) (domain.RiskAssessment, error) {
	if err := cfg.Validate(); err != nil {
		return domain.RiskAssessment{}, err
	}

	a := domain.RiskAssessment{
		CustomerID: p.CustomerID,
		StoreID:    p.StoreID,
		AssessedAt: time.Now().UTC(),
	}

	// A customer we have never seen gets no penalty and no false
	// confidence.
	if p.TotalOrders == 0 {
		a.Tier = domain.TierZeroRisk
		a.Recommendation = domain.RecommendProceed
		return a, nil
	}

	failureRate := float64(p.FailedAttempts) / float64(p.TotalOrders)
	// Return rate and failure rate share the same base ratio; the two tier
	// thresholds are still checked independently below.
	returnRate := failureRate

	score := math.Min(failureRate*failureRateWeight, failureRateWeight)
	score += math.Min(returnRate*returnRateWeight, returnRateWeight)

	if p.FailedAttempts >= cfg.SerialOffenderThreshold {
		score += serialOffenderPenalty
	}
	if p.FailedAttempts >= earlyFailureMinFailed && p.TotalOrders <= earlyFailureMaxOrders {
		score += earlyFailurePenalty
	}

	// Dampening applies after all additive penalties, not before.
	if p.TotalOrders <= cfg.NewCustomerGraceOrders {
		score *= newCustomerDampening
	}

	score = math.Min(math.Max(score, 0), 100)
	a.Score = math.Round(score*10) / 10

	a.Tier = tierFor(p, returnRate, cfg)
	a.Confidence = math.Min(100, float64(p.TotalOrders)/confidenceFullOrders*100)
	a.Recommendation = RecommendationFor(a.Tier)

	return a, nil
}

// tierFor assigns the risk tier from raw counts and rates.
func tierFor(p domain.CustomerProfile, returnRate float64, cfg domain.RiskConfig) domain.RiskTier {
	switch {
	case p.FailedAttempts <= cfg.ZeroRiskMaxFailed && returnRate <= cfg.ZeroRiskMaxReturnRate:
		return domain.TierZeroRisk
	case p.FailedAttempts <= cfg.MediumRiskMaxFailed && returnRate <= cfg.MediumRiskMaxReturnRate:
		return domain.TierMediumRisk
	default:
		return domain.TierHighRisk
	}
}

// RecommendationFor maps a risk tier to its checkout action.
func RecommendationFor(tier domain.RiskTier) domain.Recommendation {
	switch tier {
	case domain.TierZeroRisk:
		return domain.RecommendProceed
	case domain.TierMediumRisk:
		return domain.RecommendReview
	default:
		return domain.RecommendBlockCOD
	}
}
