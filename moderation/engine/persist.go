package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haven-msg/sentinel/moderation/countstore"
	"github.com/haven-msg/sentinel/moderation/evidence"
	"github.com/haven-msg/sentinel/moderation/store"
	"github.com/haven-msg/sentinel/moderation/suspension"
)

// persistFlagEffects applies accumulated content-decision effects: counter
// increments, flag escalation, and alerts.
func (eng *Engine) persistFlagEffects(ctx context.Context, flag *store.ContentFlag, eff *Effects) error {
	eng.persistCounters(ctx, eff)

	if eff.EscalateFlag {
		now := time.Now()
		flag.Escalated = true
		flag.EscalatedTo = eff.EscalateTo
		flag.EscalatedAt = &now
		flag.Status = store.FlagStatusEscalated
		if err := eng.Flags.UpdateContentFlag(ctx, flag); err != nil {
			return err
		}
		flagsEscalated.Inc()
		eng.appendAudit(ctx, "flag_escalated", "system", "flag", flag.ID, true, "", "escalated to "+eff.EscalateTo)
	}

	for _, spec := range eff.Alerts {
		subject := store.SecurityAlert{
			UserID:         flag.UserID,
			ConversationID: flag.ConversationID,
			FlagID:         flag.ID,
		}
		if err := eng.raiseAlert(ctx, spec, subject); err != nil {
			eng.Logger.Error("failed to raise alert", "err", err, "flagID", flag.ID, "category", spec.Category)
		}
	}
	return nil
}

// persistReviewEffects executes the actions a review decision requested.
// Action failures are audited but do not roll back the review itself.
func (eng *Engine) persistReviewEffects(ctx context.Context, flag *store.ContentFlag, eff *Effects, actor string) error {
	eng.persistCounters(ctx, eff)
	for _, act := range eff.Actions {
		if err := eng.executeAction(ctx, flag, act, actor); err != nil {
			eng.Logger.Error("moderation action failed", "err", err, "action", act.Action, "flagID", flag.ID)
		}
	}
	return nil
}

// executeAction carries out one moderation action. Every attempt lands in
// the audit log, success or not; suspensions and case filings are gated by
// day quotas so a runaway rule cannot mass-sanction.
func (eng *Engine) executeAction(ctx context.Context, flag *store.ContentFlag, act ActionSpec, actor string) error {
	var err error
	switch act.Action {
	case store.ModActionHideMessage:
		err = eng.hideMessage(ctx, flag, act, actor)
	case store.ModActionWarn, store.ModActionBlockUser, store.ModActionEmergencyBlock:
		err = eng.suspendForAction(ctx, flag, act, actor)
	case store.ModActionReportAuthorities:
		_, err = eng.ReportToAuthorities(ctx, flag.ID, "ncmec", "high", actor)
	case store.ModActionPreserveEvidence:
		err = eng.preserveEvidence(ctx, flag, act, actor)
	default:
		err = fmt.Errorf("unhandled moderation action: %s", act.Action)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	actionsExecuted.WithLabelValues(string(act.Action), status).Inc()
	return err
}

// hideMessage hides the flagged message. Hiding an already-hidden message is
// a no-op, so repeated reviews converge instead of erroring.
func (eng *Engine) hideMessage(ctx context.Context, flag *store.ContentFlag, act ActionSpec, actor string) error {
	msg, err := eng.Content.GetMessage(ctx, flag.MessageID)
	if err != nil {
		eng.appendAudit(ctx, "message_hidden", actor, "message", flag.MessageID, false, "not_found", "")
		return err
	}
	if msg.Hidden {
		eng.appendAudit(ctx, "message_hidden", actor, "message", msg.ID, true, "", "already hidden")
		return nil
	}
	now := time.Now()
	msg.Hidden = true
	msg.HiddenReason = act.Reason
	msg.HiddenAt = &now
	if err := eng.Content.UpdateMessage(ctx, msg); err != nil {
		eng.appendAudit(ctx, "message_hidden", actor, "message", msg.ID, false, "store_error", err.Error())
		return err
	}
	eng.appendAudit(ctx, "message_hidden", actor, "message", msg.ID, true, "", act.Reason)
	return nil
}

// suspensionFor maps a review action to a suspension request. Warnings carry
// a permissive restriction set; emergency blocks are permanent and always
// preserve evidence.
func suspensionFor(flag *store.ContentFlag, act ActionSpec, actor string) (suspension.Request, error) {
	req := suspension.Request{
		UserID:            flag.UserID,
		Reason:            act.Reason,
		CreatedBy:         actor,
		EvidencePreserved: act.EvidencePreserved,
	}
	switch act.Action {
	case store.ModActionWarn:
		d := 7 * 24 * time.Hour
		req.Type = store.SuspensionWarning
		req.Severity = store.SuspensionSevWarning
		req.Duration = &d
		req.Restrictions = &store.Restrictions{
			CanSendMessages:       true,
			CanCreateConversation: true,
			CanJoinConversation:   true,
			CanUploadMedia:        true,
			CanChangeProfile:      true,
		}
	case store.ModActionBlockUser:
		d := 30 * 24 * time.Hour
		req.Type = store.SuspensionTempBan
		req.Severity = store.SuspensionSevMajor
		req.Duration = &d
	case store.ModActionEmergencyBlock:
		req.Type = store.SuspensionEmergencyBlock
		req.Severity = store.SuspensionSevCritical
		req.EvidencePreserved = true
	default:
		return req, fmt.Errorf("action %s does not map to a suspension", act.Action)
	}
	return req, nil
}

func (eng *Engine) suspendForAction(ctx context.Context, flag *store.ContentFlag, act ActionSpec, actor string) error {
	over, err := eng.overQuota(ctx, "suspend", QuotaSuspendDay)
	if err != nil {
		return err
	}
	if over {
		quotaSkips.WithLabelValues(string(act.Action)).Inc()
		eng.appendAudit(ctx, "user_suspended", actor, "user", flag.UserID, false, "quota_exceeded", string(act.Action))
		return fmt.Errorf("daily suspension quota exceeded")
	}

	req, err := suspensionFor(flag, act, actor)
	if err != nil {
		return err
	}
	susp, err := eng.Suspensions.Apply(ctx, req)
	if err != nil {
		eng.appendAudit(ctx, "user_suspended", actor, "user", flag.UserID, false, "apply_failed", err.Error())
		return err
	}
	eng.countIncrement(ctx, "quota", "suspend")
	eng.appendAudit(ctx, "user_suspended", actor, "user", flag.UserID, true, "",
		fmt.Sprintf("%s via %s", susp.Type, act.Action))

	// blocks are high-severity actions and always surface as alerts;
	// warnings stay audit-only
	if act.Action == store.ModActionBlockUser || act.Action == store.ModActionEmergencyBlock {
		sev := store.AlertHigh
		if act.Action == store.ModActionEmergencyBlock {
			sev = store.AlertCritical
		}
		spec := AlertSpec{
			Category: "user_suspended",
			Severity: sev,
			Message:  fmt.Sprintf("user suspended: %s via %s", susp.Type, act.Action),
		}
		subject := store.SecurityAlert{
			UserID:         flag.UserID,
			ConversationID: flag.ConversationID,
			FlagID:         flag.ID,
		}
		if err := eng.raiseAlert(ctx, spec, subject); err != nil {
			eng.Logger.Error("failed to raise alert", "err", err, "userID", flag.UserID, "category", spec.Category)
		}
	}

	if act.Action == store.ModActionEmergencyBlock {
		_, err := eng.Evidence.CreateHold(ctx, evidence.HoldRequest{
			RetentionClass: evidence.RetentionEmergency,
			Reason:         act.Reason,
			CreatedBy:      actor,
			UserIDs:        []string{flag.UserID},
		})
		if err != nil {
			eng.Logger.Error("failed to create emergency hold", "err", err, "userID", flag.UserID)
		}
	}
	return nil
}

func (eng *Engine) preserveEvidence(ctx context.Context, flag *store.ContentFlag, act ActionSpec, actor string) error {
	hold, err := eng.Evidence.CreateHold(ctx, evidence.HoldRequest{
		RetentionClass: evidence.RetentionStandard,
		Reason:         act.Reason,
		CreatedBy:      actor,
		MessageIDs:     []string{flag.MessageID},
	})
	if err != nil {
		eng.appendAudit(ctx, "evidence_preserved", actor, "message", flag.MessageID, false, "hold_failed", err.Error())
		return err
	}
	eng.appendAudit(ctx, "evidence_preserved", actor, "hold", hold.ID, true, "", "message "+flag.MessageID)
	return nil
}

// raiseAlert creates a security alert unless an identical one fired for the
// same subject within the dedupe window. High and critical alerts also go
// out through the notifier.
func (eng *Engine) raiseAlert(ctx context.Context, spec AlertSpec, subject store.SecurityAlert) error {
	dupeKey := spec.Category + "/" + subject.UserID + "/" + subject.ConversationID
	if eng.Counters != nil {
		n, err := eng.Counters.GetCount(ctx, "alert-dupe", dupeKey, AlertDupePeriod)
		if err != nil {
			return err
		}
		if n > 0 {
			alertsDeduped.Inc()
			return nil
		}
	}

	alert := &store.SecurityAlert{
		ID:             uuid.NewString(),
		Category:       spec.Category,
		Severity:       spec.Severity,
		Status:         store.AlertStatusActive,
		Message:        spec.Message,
		UserID:         subject.UserID,
		ConversationID: subject.ConversationID,
		FlagID:         subject.FlagID,
		CaseID:         subject.CaseID,
	}
	if err := eng.Alerts.CreateAlert(ctx, alert); err != nil {
		return err
	}
	eng.countIncrement(ctx, "alert-dupe", dupeKey)
	alertsRaised.WithLabelValues(spec.Category, string(spec.Severity)).Inc()
	eng.appendAudit(ctx, "alert_raised", "system", "alert", alert.ID, true, "", spec.Category)

	if eng.Notifier != nil && (spec.Severity == store.AlertHigh || spec.Severity == store.AlertCritical || spec.Severity == store.AlertEmergency) {
		payload := map[string]string{
			"category": spec.Category,
			"severity": string(spec.Severity),
			"message":  spec.Message,
		}
		if subject.UserID != "" {
			payload["user_id"] = subject.UserID
		}
		if err := eng.Notifier.Send(ctx, nil, spec.Category, payload); err != nil {
			eng.Logger.Error("alert notification failed", "err", err, "alertID", alert.ID)
		}
	}
	return nil
}

// overQuota reports whether today's count for the named automated action has
// reached its circuit-breaker limit.
func (eng *Engine) overQuota(ctx context.Context, val string, limit int) (bool, error) {
	if eng.Counters == nil {
		return false, nil
	}
	n, err := eng.Counters.GetCount(ctx, "quota", val, countstore.PeriodDay)
	if err != nil {
		return false, err
	}
	return n >= limit, nil
}

func (eng *Engine) persistCounters(ctx context.Context, eff *Effects) {
	if eng.Counters == nil {
		return
	}
	for _, ref := range eff.CounterIncrements {
		var err error
		if ref.Period != nil {
			err = eng.Counters.IncrementPeriod(ctx, ref.Name, ref.Val, *ref.Period)
		} else {
			err = eng.Counters.Increment(ctx, ref.Name, ref.Val)
		}
		if err != nil {
			eng.Logger.Warn("failed to increment counter", "err", err, "counter", ref.Name)
		}
	}
	for _, ref := range eff.CounterDistinctIncrements {
		if err := eng.Counters.IncrementDistinct(ctx, ref.Name, ref.Bucket, ref.Val); err != nil {
			eng.Logger.Warn("failed to increment distinct counter", "err", err, "counter", ref.Name)
		}
	}
}
