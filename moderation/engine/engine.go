// Package engine is the moderation core: it scores content, manages the
// flag lifecycle, evaluates escalation policy, and executes moderation
// actions. Policy decisions are pure functions over an Effects accumulator;
// the engine applies the accumulated effects afterward, so decision logic
// stays testable without any backing stores.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haven-msg/sentinel/moderation/analysis"
	"github.com/haven-msg/sentinel/moderation/cachestore"
	"github.com/haven-msg/sentinel/moderation/countstore"
	"github.com/haven-msg/sentinel/moderation/evidence"
	"github.com/haven-msg/sentinel/moderation/notify"
	"github.com/haven-msg/sentinel/moderation/store"
	"github.com/haven-msg/sentinel/moderation/suspension"
)

type Engine struct {
	Logger   *slog.Logger
	Policy   Thresholds
	Analyzer analysis.Analyzer

	Flags    store.FlagStore
	Alerts   store.AlertStore
	Audit    store.AuditLog
	Content  store.ContentStore
	Behavior store.BehaviorStore

	Suspensions *suspension.Manager
	Evidence    *evidence.Manager

	Counters countstore.CountStore
	Cache    cachestore.CacheStore
	Notifier notify.Notifier

	// messages analyzed per scan batch before the cursor is persisted
	ScanBatchSize int
}

// ContentSubmission is one content item handed to the engine for scoring.
type ContentSubmission struct {
	MessageID      string
	ConversationID string
	UserID         string
	Text           string
	ContentType    string
}

func (s *ContentSubmission) Validate() error {
	if s.MessageID == "" {
		return validationErr("messageID", "must not be empty")
	}
	if s.UserID == "" {
		return validationErr("userID", "must not be empty")
	}
	if s.ContentType == "" {
		s.ContentType = analysis.AnalysisTypeText
	}
	return nil
}

// SubmitContent scores one content item and creates a flag for it. If the
// analyzer is unavailable the submission fails with analysis.ErrUnavailable
// and no flag is created: an unscored item is pending, never low-risk.
func (eng *Engine) SubmitContent(ctx context.Context, sub ContentSubmission) (flag *store.ContentFlag, outErr error) {
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("engine panic", "recovered", r, "messageID", sub.MessageID)
			enginePanics.Inc()
			outErr = fmt.Errorf("engine panic: %v", r)
		}
	}()
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	assessment, err := eng.analyze(ctx, analysis.Content{
		MessageID:      sub.MessageID,
		ConversationID: sub.ConversationID,
		UserID:         sub.UserID,
		Text:           sub.Text,
		ContentType:    sub.ContentType,
	}, sub.ContentType)
	if err != nil {
		return nil, err
	}

	flag, err = eng.createFlag(ctx, sub, nil, assessment)
	if err != nil {
		return nil, err
	}

	eff := DecideContent(eng.Policy, flag.RiskScore)
	if err := eng.persistFlagEffects(ctx, flag, eff); err != nil {
		return nil, err
	}
	contentSubmitted.WithLabelValues(string(flag.Severity)).Inc()
	eng.Logger.Info("content scored",
		"messageID", sub.MessageID,
		"riskScore", flag.RiskScore,
		"severity", flag.Severity,
		"escalated", flag.Escalated)
	return flag, nil
}

// ReviewRequest is a human reviewer's verdict on a flag.
type ReviewRequest struct {
	ReviewedBy string
	Status     store.FlagStatus
	Action     store.ModAction
	Notes      string
	// escalation target when Status is escalated; defaults to admin
	EscalateTo string
}

func (r *ReviewRequest) Validate() error {
	if r.ReviewedBy == "" {
		return validationErr("reviewedBy", "must not be empty")
	}
	if !r.Status.Valid() {
		return validationErr("status", fmt.Sprintf("unknown value %q", r.Status))
	}
	if r.Action == "" {
		r.Action = store.ModActionNone
	}
	if !r.Action.Valid() {
		return validationErr("action", fmt.Sprintf("unknown value %q", r.Action))
	}
	return nil
}

// ReviewFlag applies a reviewer verdict. Re-review fully overwrites the
// previous review fields (last write wins) while the audit log keeps every
// review as its own entry. Requested actions execute after the flag update.
func (eng *Engine) ReviewFlag(ctx context.Context, flagID string, req ReviewRequest) (*store.ContentFlag, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	flag, err := eng.Flags.GetContentFlag(ctx, flagID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	flag.Status = req.Status
	flag.ReviewedBy = req.ReviewedBy
	flag.ReviewedAt = &now
	flag.ReviewNotes = req.Notes
	flag.ModerationAction = req.Action
	// a reviewer verdict of escalated marks the flag escalated the same way
	// the automatic path does; an escalated status never carries a false
	// escalation marker
	manualEscalation := req.Status == store.FlagStatusEscalated && !flag.Escalated
	if manualEscalation {
		target := req.EscalateTo
		if target == "" {
			target = "admin"
		}
		flag.Escalated = true
		flag.EscalatedTo = target
		flag.EscalatedAt = &now
	}
	if err := eng.Flags.UpdateContentFlag(ctx, flag); err != nil {
		return nil, err
	}
	eng.appendAudit(ctx, "flag_reviewed", req.ReviewedBy, "flag", flag.ID, true, "",
		fmt.Sprintf("status=%s action=%s", req.Status, req.Action))
	if manualEscalation {
		flagsEscalated.Inc()
		eng.appendAudit(ctx, "flag_escalated", req.ReviewedBy, "flag", flag.ID, true, "", "escalated to "+flag.EscalatedTo)
	}

	eff := DecideReview(req.Action, req.Notes, req.Action == store.ModActionPreserveEvidence)
	if err := eng.persistReviewEffects(ctx, flag, eff, req.ReviewedBy); err != nil {
		return nil, err
	}
	return flag, nil
}

// ScanRequest starts or resumes one conversation scan.
type ScanRequest struct {
	ConversationID string
	LookbackDays   int
	// resume an interrupted scan from its saved cursor
	ResumeScanID string
}

// ScanConversation re-analyzes a conversation's recent history in batches.
// The scan cursor is persisted after every batch so an interrupted run can
// resume without re-flagging messages it already processed; the unique
// (scanID, messageID) flag index backstops that at the store level.
func (eng *Engine) ScanConversation(ctx context.Context, req ScanRequest) (scan *store.ConversationScan, outErr error) {
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("engine panic", "recovered", r, "conversationID", req.ConversationID)
			enginePanics.Inc()
			outErr = fmt.Errorf("engine panic: %v", r)
		}
	}()
	if req.ConversationID == "" {
		return nil, validationErr("conversationID", "must not be empty")
	}
	if req.LookbackDays <= 0 {
		req.LookbackDays = 30
	}
	if _, err := eng.Content.GetConversation(ctx, req.ConversationID); err != nil {
		return nil, err
	}

	if req.ResumeScanID != "" {
		scan, outErr = eng.Content.GetScan(ctx, req.ResumeScanID)
		if outErr != nil {
			return nil, outErr
		}
		if scan.Status != store.ScanRunning {
			return nil, validationErr("resumeScanID", fmt.Sprintf("scan is %s, not resumable", scan.Status))
		}
	} else {
		scan = &store.ConversationScan{
			ID:             uuid.NewString(),
			ConversationID: req.ConversationID,
			LookbackDays:   req.LookbackDays,
			Status:         store.ScanRunning,
		}
		if err := eng.Content.CreateScan(ctx, scan); err != nil {
			return nil, err
		}
	}

	batchSize := eng.ScanBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	since := time.Now().AddDate(0, 0, -scan.LookbackDays)

	for {
		if err := ctx.Err(); err != nil {
			// cursor is already persisted; the scan stays running and resumable
			return scan, err
		}
		msgs, err := eng.Content.ConversationMessages(ctx, scan.ConversationID, since, scan.Cursor, batchSize)
		if err != nil {
			return scan, err
		}
		if len(msgs) == 0 {
			break
		}
		for i := range msgs {
			if err := eng.scanMessage(ctx, scan, &msgs[i]); err != nil {
				if errors.Is(err, analysis.ErrUnavailable) {
					// leave the scan running; the saved cursor resumes here
					if uerr := eng.Content.UpdateScan(ctx, scan); uerr != nil {
						eng.Logger.Error("failed to persist scan cursor", "err", uerr, "scanID", scan.ID)
					}
					return scan, err
				}
				eng.Logger.Error("scan message failed", "err", err, "scanID", scan.ID, "messageID", msgs[i].ID)
			}
			scan.Cursor = msgs[i].ID
		}
		if err := eng.Content.UpdateScan(ctx, scan); err != nil {
			return scan, err
		}
		if len(msgs) < batchSize {
			break
		}
	}

	now := time.Now()
	scan.Status = store.ScanCompleted
	scan.CompletedAt = &now
	if err := eng.Content.UpdateScan(ctx, scan); err != nil {
		return scan, err
	}
	scansCompleted.Inc()
	eng.appendAudit(ctx, "conversation_scanned", "system", "scan", scan.ID, true, "", scan.Summary())

	eff := DecideScan(scan.ConversationID, scan.MessagesFlagged, scan.TotalRisk)
	for _, spec := range eff.Alerts {
		if err := eng.raiseAlert(ctx, spec, store.SecurityAlert{ConversationID: scan.ConversationID}); err != nil {
			eng.Logger.Error("failed to raise scan alert", "err", err, "scanID", scan.ID)
		}
	}
	eng.Logger.Info("conversation scan complete", "scanID", scan.ID,
		"scanned", scan.MessagesScanned, "flagged", scan.MessagesFlagged, "totalRisk", scan.TotalRisk)
	return scan, nil
}

// scanMessage scores one message within a scan. Already-flagged pairs are
// skipped so resumed scans neither double-flag nor double-count risk.
func (eng *Engine) scanMessage(ctx context.Context, scan *store.ConversationScan, msg *store.Message) error {
	if _, err := eng.Flags.GetScanFlag(ctx, scan.ID, msg.ID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	assessment, err := eng.analyze(ctx, analysis.Content{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         msg.SenderID,
		Text:           msg.Content,
		ContentType:    msg.ContentType,
	}, msg.ContentType)
	if err != nil {
		return err
	}
	scan.MessagesScanned++
	scanMessagesProcessed.Inc()

	severity := eng.Policy.Severity(assessment.RiskScore)
	if severity.Rank() < store.SeverityMedium.Rank() && !eng.Policy.ReviewRequired(assessment.RiskScore) {
		return nil
	}

	sub := ContentSubmission{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         msg.SenderID,
		ContentType:    msg.ContentType,
	}
	flag, err := eng.createFlag(ctx, sub, &scan.ID, assessment)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	}
	scan.MessagesFlagged++
	scan.TotalRisk += flag.RiskScore

	eff := DecideContent(eng.Policy, flag.RiskScore)
	return eng.persistFlagEffects(ctx, flag, eff)
}

// ActivityReport is a behavior-level observation about a user, backed by
// zero or more evidence messages.
type ActivityReport struct {
	UserID             string
	ActivityType       string
	EvidenceMessageIDs []string
	ReportedBy         string
	Notes              string
}

func (r *ActivityReport) Validate() error {
	if r.UserID == "" {
		return validationErr("userID", "must not be empty")
	}
	if r.ActivityType == "" {
		return validationErr("activityType", "must not be empty")
	}
	return nil
}

// SubmitActivityReport records a behavior observation and re-scores the
// user's rolling risk posture. The score is additive over evidence, and the
// monitoring level always tracks the latest score.
func (eng *Engine) SubmitActivityReport(ctx context.Context, rep ActivityReport) (*store.ActivityFlag, error) {
	if err := rep.Validate(); err != nil {
		return nil, err
	}

	score := BehaviorRiskScore(rep.ActivityType, len(rep.EvidenceMessageIDs))
	flag := &store.ActivityFlag{
		ID:                 uuid.NewString(),
		UserID:             rep.UserID,
		ActivityType:       rep.ActivityType,
		RiskScore:          score,
		Severity:           eng.Policy.Severity(score),
		Status:             store.FlagStatusPending,
		ReportedBy:         rep.ReportedBy,
		Notes:              rep.Notes,
		EvidenceMessageIDs: rep.EvidenceMessageIDs,
	}
	if err := eng.Flags.CreateActivityFlag(ctx, flag); err != nil {
		return nil, err
	}
	eng.appendAudit(ctx, "activity_reported", rep.ReportedBy, "activity_flag", flag.ID, true, "",
		fmt.Sprintf("%s score=%.2f", rep.ActivityType, score))
	activityReports.WithLabelValues(rep.ActivityType).Inc()

	eff := DecideBehavior(score)
	behavior, err := eng.Behavior.GetBehavior(ctx, rep.UserID)
	if errors.Is(err, store.ErrNotFound) {
		behavior = &store.BehaviorAnalysis{ID: uuid.NewString(), UserID: rep.UserID}
	} else if err != nil {
		return nil, err
	}
	behavior.RiskScore = score
	behavior.MonitoringLevel = eff.MonitoringLevel
	behavior.RequiresAction = eff.RequiresAction
	behavior.LastEvaluatedAt = time.Now()
	if err := eng.Behavior.UpsertBehavior(ctx, behavior); err != nil {
		return nil, err
	}

	for _, spec := range eff.Alerts {
		if err := eng.raiseAlert(ctx, spec, store.SecurityAlert{UserID: rep.UserID, FlagID: flag.ID}); err != nil {
			eng.Logger.Error("failed to raise behavior alert", "err", err, "userID", rep.UserID)
		}
	}
	eng.Logger.Info("activity report scored", "userID", rep.UserID,
		"activityType", rep.ActivityType, "riskScore", score, "monitoring", eff.MonitoringLevel)
	return flag, nil
}

// SuspendUser applies an admin-requested suspension directly. Automated
// suspensions go through review actions and their day quota; manual ones do
// not.
func (eng *Engine) SuspendUser(ctx context.Context, req suspension.Request) (*store.Suspension, error) {
	susp, err := eng.Suspensions.Apply(ctx, req)
	if err != nil {
		return nil, err
	}
	eng.countIncrement(ctx, "suspension", string(req.Type))
	return susp, nil
}

func (eng *Engine) LiftSuspension(ctx context.Context, userID, actor string, override bool) (*store.Suspension, error) {
	return eng.Suspensions.Lift(ctx, userID, actor, override)
}

// ReportToAuthorities files a law-enforcement case for a flag, subject to
// the case day quota.
func (eng *Engine) ReportToAuthorities(ctx context.Context, flagID, agency, urgency, actor string) (*store.CaseReport, error) {
	if agency == "" {
		return nil, validationErr("agency", "must not be empty")
	}
	over, err := eng.overQuota(ctx, "case", QuotaCaseDay)
	if err != nil {
		return nil, err
	}
	if over {
		quotaSkips.WithLabelValues(string(store.ModActionReportAuthorities)).Inc()
		eng.appendAudit(ctx, "case_filed", actor, "flag", flagID, false, "quota_exceeded", "")
		return nil, fmt.Errorf("daily case filing quota exceeded")
	}
	report, err := eng.Evidence.FileReport(ctx, flagID, agency, urgency, actor)
	if err != nil {
		return report, err
	}
	eng.countIncrement(ctx, "quota", "case")
	return report, nil
}

// AcknowledgeAlert marks an active alert as being investigated. Terminal
// alerts never reopen.
func (eng *Engine) AcknowledgeAlert(ctx context.Context, alertID, actor string) (*store.SecurityAlert, error) {
	alert, err := eng.Alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status.Terminal() {
		return nil, validationErr("alertID", fmt.Sprintf("alert is %s", alert.Status))
	}
	now := time.Now()
	alert.Status = store.AlertStatusInvestigating
	alert.AcknowledgedBy = actor
	alert.AcknowledgedAt = &now
	if err := eng.Alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	eng.appendAudit(ctx, "alert_acknowledged", actor, "alert", alert.ID, true, "", "")
	return alert, nil
}

func (eng *Engine) ResolveAlert(ctx context.Context, alertID, actor string, dismiss bool) (*store.SecurityAlert, error) {
	alert, err := eng.Alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status.Terminal() {
		return nil, validationErr("alertID", fmt.Sprintf("alert is %s", alert.Status))
	}
	now := time.Now()
	alert.Status = store.AlertStatusResolved
	if dismiss {
		alert.Status = store.AlertStatusDismissed
	}
	alert.ResolvedBy = actor
	alert.ResolvedAt = &now
	if err := eng.Alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	eng.appendAudit(ctx, "alert_resolved", actor, "alert", alert.ID, true, "", string(alert.Status))
	return alert, nil
}

// analyze scores content, consulting the assessment cache first. Only
// successful assessments are cached; an unavailable analyzer always
// surfaces as an error.
func (eng *Engine) analyze(ctx context.Context, content analysis.Content, contentType string) (*analysis.Assessment, error) {
	analysisType := analysis.AnalysisTypeText
	if contentType == analysis.AnalysisTypeImage {
		analysisType = analysis.AnalysisTypeImage
	}

	if eng.Cache != nil {
		if cached, err := eng.Cache.Get(ctx, "assessment", content.MessageID); err == nil && cached != "" {
			var a analysis.Assessment
			if err := json.Unmarshal([]byte(cached), &a); err == nil {
				return &a, nil
			}
		}
	}

	assessment, err := eng.Analyzer.Analyze(ctx, content, analysisType)
	if err != nil {
		return nil, err
	}
	assessment.RiskScore = analysis.Clamp(assessment.RiskScore)

	if eng.Cache != nil {
		if out, err := json.Marshal(assessment); err == nil {
			if err := eng.Cache.Set(ctx, "assessment", content.MessageID, string(out)); err != nil {
				eng.Logger.Warn("failed to cache assessment", "err", err, "messageID", content.MessageID)
			}
		}
	}
	return assessment, nil
}

func (eng *Engine) createFlag(ctx context.Context, sub ContentSubmission, scanID *string, assessment *analysis.Assessment) (*store.ContentFlag, error) {
	flag := &store.ContentFlag{
		ID:             uuid.NewString(),
		MessageID:      sub.MessageID,
		ScanID:         scanID,
		ConversationID: sub.ConversationID,
		UserID:         sub.UserID,
		RiskScore:      assessment.RiskScore,
		Confidence:     assessment.Confidence,
		Severity:       eng.Policy.Severity(assessment.RiskScore),
		Status:         store.FlagStatusPending,
		ReviewRequired: eng.Policy.ReviewRequired(assessment.RiskScore),
		Detections:     assessment.Flags,
	}
	if err := eng.Flags.CreateContentFlag(ctx, flag); err != nil {
		return nil, err
	}
	eng.appendAudit(ctx, "content_flagged", "system", "flag", flag.ID, true, "",
		fmt.Sprintf("score=%.2f severity=%s", flag.RiskScore, flag.Severity))
	return flag, nil
}

func (eng *Engine) appendAudit(ctx context.Context, action, actor, targetType, targetID string, success bool, errCode, note string) {
	entry := &store.AuditEntry{
		Action:     action,
		ActorID:    actor,
		TargetType: targetType,
		TargetID:   targetID,
		Success:    success,
		ErrorCode:  errCode,
		Note:       note,
	}
	if err := eng.Audit.Append(ctx, entry); err != nil {
		eng.Logger.Error("failed to append audit entry", "err", err, "action", action)
	}
}

func (eng *Engine) countIncrement(ctx context.Context, name, val string) {
	if eng.Counters == nil {
		return
	}
	if err := eng.Counters.Increment(ctx, name, val); err != nil {
		eng.Logger.Warn("failed to increment counter", "err", err, "counter", name)
	}
}
