package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var contentSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_content_submitted_total",
}, []string{"severity"})

var flagsEscalated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_flags_escalated_total",
})

var actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_actions_executed_total",
}, []string{"action", "status"})

var alertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_alerts_raised_total",
}, []string{"category", "severity"})

var alertsDeduped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_alerts_deduped_total",
})

var quotaSkips = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_quota_skips_total",
}, []string{"action"})

var scansCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_scans_completed_total",
})

var scanMessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_scan_messages_processed_total",
})

var activityReports = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_activity_reports_total",
}, []string{"activity_type"})

var enginePanics = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_engine_panics_total",
})
