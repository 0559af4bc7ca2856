package engine

import (
	"fmt"

	"github.com/haven-msg/sentinel/moderation/countstore"
	"github.com/haven-msg/sentinel/moderation/store"
)

// Decision functions are pure: given scores and policy they return an
// Effects object and perform no I/O themselves.

// DecideContent evaluates a freshly scored content item. Scores strictly
// above the auto-escalate threshold escalate the flag to admin review and
// raise a critical alert.
func DecideContent(t Thresholds, riskScore float64) *Effects {
	eff := &Effects{}
	eff.Increment("content-scored", string(t.Severity(riskScore)))
	if riskScore > t.AutoEscalate {
		eff.Escalate("admin")
		eff.IncrementPeriod("escalated", "content", countstore.PeriodDay)
		eff.RaiseAlert("high_risk_content", store.AlertCritical,
			fmt.Sprintf("content risk score %.2f exceeds auto-escalation threshold", riskScore))
	}
	return eff
}

// DecideReview maps a human reviewer's requested action to effects. A "none"
// action resolves the flag with no side effects.
func DecideReview(action store.ModAction, reason string, evidencePreserved bool) *Effects {
	eff := &Effects{}
	if action != store.ModActionNone && action != "" {
		eff.RequestAction(action, reason, evidencePreserved)
	}
	return eff
}

// DecideScan evaluates conversation-scan aggregates. More than five flagged
// messages, or total accumulated risk above 3, indicates coordination and
// raises an alert: high when total risk exceeds 5, medium otherwise. Tripped
// conversations also land in a distinct day counter for volume tracking.
func DecideScan(conversationID string, flaggedCount int, totalRisk float64) *Effects {
	eff := &Effects{}
	if flaggedCount > 5 || totalRisk > 3 {
		sev := store.AlertMedium
		if totalRisk > 5 {
			sev = store.AlertHigh
		}
		eff.IncrementDistinct("coordinated", "conversation", conversationID)
		eff.RaiseAlert("coordinated_threats", sev,
			fmt.Sprintf("conversation scan flagged %d messages, total risk %.2f", flaggedCount, totalRisk))
	}
	return eff
}

// DecideBehavior evaluates a behavior-analysis score. Scores above 0.8 raise
// an alert (critical above 0.9) and mark the user as requiring action; the
// monitoring level tracks the score regardless.
func DecideBehavior(score float64) *Effects {
	eff := &Effects{}
	eff.MonitoringLevel = MonitoringLevelFor(score)
	if score > 0.8 {
		sev := store.AlertHigh
		if score > 0.9 {
			sev = store.AlertCritical
		}
		eff.RaiseAlert("high_risk_behavior", sev,
			fmt.Sprintf("behavior analysis risk score %.2f", score))
		eff.RequiresAction = true
	}
	return eff
}
