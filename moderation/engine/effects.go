package engine

import (
	"github.com/haven-msg/sentinel/moderation/countstore"
	"github.com/haven-msg/sentinel/moderation/store"
)

var (
	// counter period within which the engine will not raise a duplicate
	// alert for the same category and subject
	AlertDupePeriod = countstore.PeriodDay
	// number of suspensions the engine can apply per day, all users combined
	// (circuit breaker)
	QuotaSuspendDay = 25
	// number of law-enforcement cases the engine can file per day (circuit
	// breaker)
	QuotaCaseDay = 10
)

type CounterRef struct {
	Name   string
	Val    string
	Period *string
}

type CounterDistinctRef struct {
	Name   string
	Bucket string
	Val    string
}

// AlertSpec is a security alert a decision wants raised.
type AlertSpec struct {
	Category string
	Severity store.AlertSeverity
	Message  string
}

// ActionSpec is a moderation action a decision wants executed.
type ActionSpec struct {
	Action            store.ModAction
	Reason            string
	EvidencePreserved bool
}

// Effects is the mutable decision object produced by policy evaluation.
// Decision code only appends here; the engine applies everything afterward.
// This split keeps policy logic free of I/O and independently testable.
type Effects struct {
	CounterIncrements         []CounterRef
	CounterDistinctIncrements []CounterDistinctRef

	// flag-level escalation requested by policy
	EscalateFlag bool
	EscalateTo   string

	Alerts  []AlertSpec
	Actions []ActionSpec

	// behavior-analysis outcomes
	MonitoringLevel store.MonitoringLevel
	RequiresAction  bool
}

func (e *Effects) Increment(name, val string) {
	e.CounterIncrements = append(e.CounterIncrements, CounterRef{Name: name, Val: val})
}

func (e *Effects) IncrementPeriod(name, val, period string) {
	e.CounterIncrements = append(e.CounterIncrements, CounterRef{Name: name, Val: val, Period: &period})
}

func (e *Effects) IncrementDistinct(name, bucket, val string) {
	e.CounterDistinctIncrements = append(e.CounterDistinctIncrements, CounterDistinctRef{Name: name, Bucket: bucket, Val: val})
}

func (e *Effects) Escalate(to string) {
	e.EscalateFlag = true
	e.EscalateTo = to
}

func (e *Effects) RaiseAlert(category string, severity store.AlertSeverity, message string) {
	e.Alerts = append(e.Alerts, AlertSpec{Category: category, Severity: severity, Message: message})
}

func (e *Effects) RequestAction(action store.ModAction, reason string, evidencePreserved bool) {
	e.Actions = append(e.Actions, ActionSpec{Action: action, Reason: reason, EvidencePreserved: evidencePreserved})
}
