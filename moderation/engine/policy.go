package engine

import (
	"github.com/haven-msg/sentinel/moderation/analysis"
	"github.com/haven-msg/sentinel/moderation/store"
)

// Thresholds holds the numeric policy boundaries. These are configuration,
// not scattered per-caller constants; every severity decision in the engine
// goes through this one place.
type Thresholds struct {
	// severity tiers: critical at >= Critical, high at >= High, medium at >= Medium
	Critical float64
	High     float64
	Medium   float64
	// human review is required strictly above this score
	Review float64
	// automatic escalation fires strictly above this score
	AutoEscalate float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical:     0.8,
		High:         0.6,
		Medium:       0.4,
		Review:       0.5,
		AutoEscalate: 0.8,
	}
}

// Severity maps a risk score to its tier. Monotonic non-decreasing in the
// score; the boundary value belongs to the higher tier (0.8 is critical).
func (t Thresholds) Severity(score float64) store.Severity {
	switch {
	case score >= t.Critical:
		return store.SeverityCritical
	case score >= t.High:
		return store.SeverityHigh
	case score >= t.Medium:
		return store.SeverityMedium
	default:
		return store.SeverityLow
	}
}

func (t Thresholds) ReviewRequired(score float64) bool {
	return score > t.Review
}

// Base scores per activity type for behavior-level flags. Behavioral
// evidence accumulates: each evidence message adds 0.1 on top of the base,
// clamped to 1. Single-message content risk, by contrast, is the analyzer's
// direct output.
var behaviorBaseScores = map[string]float64{
	"child_exploitation":  0.95,
	"terrorism":           0.9,
	"coordinated_attack":  0.8,
	"harassment_campaign": 0.65,
	"scam":                0.55,
	"suspicious_behavior": 0.5,
	"spam_network":        0.4,
}

// BehaviorRiskScore computes the additive behavior score. Unknown activity
// types score as generic suspicious behavior.
func BehaviorRiskScore(activityType string, evidenceCount int) float64 {
	base, ok := behaviorBaseScores[activityType]
	if !ok {
		base = behaviorBaseScores["suspicious_behavior"]
	}
	return analysis.Clamp(base + 0.1*float64(evidenceCount))
}

// MonitoringLevelFor maps a behavior score to the user's monitoring level,
// escalating as the score crosses 0.6 and 0.8.
func MonitoringLevelFor(score float64) store.MonitoringLevel {
	switch {
	case score > 0.8:
		return store.MonitoringIntensive
	case score > 0.6:
		return store.MonitoringEnhanced
	default:
		return store.MonitoringStandard
	}
}
