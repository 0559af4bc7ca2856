package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haven-msg/sentinel/moderation/store"
)

func TestSeverityBoundaries(t *testing.T) {
	assert := assert.New(t)
	pol := DefaultThresholds()

	assert.Equal(store.SeverityLow, pol.Severity(0.0))
	assert.Equal(store.SeverityLow, pol.Severity(0.39))
	assert.Equal(store.SeverityMedium, pol.Severity(0.4))
	assert.Equal(store.SeverityMedium, pol.Severity(0.59))
	assert.Equal(store.SeverityHigh, pol.Severity(0.6))
	assert.Equal(store.SeverityHigh, pol.Severity(0.7999))
	assert.Equal(store.SeverityCritical, pol.Severity(0.8))
	assert.Equal(store.SeverityCritical, pol.Severity(1.0))
}

func TestSeverityMonotonic(t *testing.T) {
	assert := assert.New(t)
	pol := DefaultThresholds()

	prev := 0
	for score := 0.0; score <= 1.0; score += 0.01 {
		rank := pol.Severity(score).Rank()
		assert.GreaterOrEqual(rank, prev, "severity must not decrease at score %.2f", score)
		prev = rank
	}
}

func TestReviewRequiredStrict(t *testing.T) {
	assert := assert.New(t)
	pol := DefaultThresholds()

	assert.False(pol.ReviewRequired(0.5))
	assert.True(pol.ReviewRequired(0.51))
	assert.False(pol.ReviewRequired(0.0))
	assert.True(pol.ReviewRequired(1.0))
}

func TestBehaviorRiskScore(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(0.95, BehaviorRiskScore("child_exploitation", 0), 0.001)
	assert.InDelta(0.75, BehaviorRiskScore("harassment_campaign", 1), 0.001)
	// clamped at 1 no matter how much evidence accumulates
	assert.Equal(1.0, BehaviorRiskScore("terrorism", 5))
	assert.Equal(1.0, BehaviorRiskScore("child_exploitation", 100))
	// unknown activity types score as generic suspicious behavior
	assert.InDelta(0.5, BehaviorRiskScore("something_else", 0), 0.001)
}

func TestMonitoringLevels(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(store.MonitoringStandard, MonitoringLevelFor(0.0))
	assert.Equal(store.MonitoringStandard, MonitoringLevelFor(0.6))
	assert.Equal(store.MonitoringEnhanced, MonitoringLevelFor(0.61))
	assert.Equal(store.MonitoringEnhanced, MonitoringLevelFor(0.8))
	assert.Equal(store.MonitoringIntensive, MonitoringLevelFor(0.81))
}

func TestDecideContentAutoEscalation(t *testing.T) {
	assert := assert.New(t)
	pol := DefaultThresholds()

	// 0.8 exactly is critical severity but does NOT auto-escalate
	eff := DecideContent(pol, 0.8)
	assert.False(eff.EscalateFlag)
	assert.Empty(eff.Alerts)

	eff = DecideContent(pol, 0.81)
	assert.True(eff.EscalateFlag)
	assert.Equal("admin", eff.EscalateTo)
	if assert.Len(eff.Alerts, 1) {
		assert.Equal("high_risk_content", eff.Alerts[0].Category)
		assert.Equal(store.AlertCritical, eff.Alerts[0].Severity)
	}
}

func TestDecideScan(t *testing.T) {
	assert := assert.New(t)

	eff := DecideScan("conv-1", 2, 1.5)
	assert.Empty(eff.Alerts)
	assert.Empty(eff.CounterDistinctIncrements)

	eff = DecideScan("conv-1", 6, 2.0)
	if assert.Len(eff.Alerts, 1) {
		assert.Equal("coordinated_threats", eff.Alerts[0].Category)
		assert.Equal(store.AlertMedium, eff.Alerts[0].Severity)
	}
	if assert.Len(eff.CounterDistinctIncrements, 1) {
		assert.Equal("conv-1", eff.CounterDistinctIncrements[0].Val)
	}

	eff = DecideScan("conv-1", 3, 5.5)
	if assert.Len(eff.Alerts, 1) {
		assert.Equal(store.AlertHigh, eff.Alerts[0].Severity)
	}
}

func TestDecideBehavior(t *testing.T) {
	assert := assert.New(t)

	eff := DecideBehavior(0.5)
	assert.Empty(eff.Alerts)
	assert.False(eff.RequiresAction)
	assert.Equal(store.MonitoringStandard, eff.MonitoringLevel)

	eff = DecideBehavior(0.85)
	assert.True(eff.RequiresAction)
	assert.Equal(store.MonitoringIntensive, eff.MonitoringLevel)
	if assert.Len(eff.Alerts, 1) {
		assert.Equal(store.AlertHigh, eff.Alerts[0].Severity)
	}

	eff = DecideBehavior(0.95)
	if assert.Len(eff.Alerts, 1) {
		assert.Equal(store.AlertCritical, eff.Alerts[0].Severity)
	}
}
