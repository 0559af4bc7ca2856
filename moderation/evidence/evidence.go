// Package evidence owns legal holds and law-enforcement case reports. Holds
// always win over retention timers: nothing under an active hold may be
// purged, and the guard is evaluated at purge time, not hold-creation time.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haven-msg/sentinel/moderation/store"
)

var (
	ErrUnknownRetentionClass = errors.New("unknown retention class")
	ErrInvalidTransition     = errors.New("invalid case status transition")
)

// Named retention classes for evidence holds.
const (
	RetentionStandard       = "standard"
	RetentionLawEnforcement = "law_enforcement"
	RetentionLegal          = "legal"
	RetentionEmergency      = "emergency"
)

// RetentionPeriod maps a retention class to its hold duration.
func RetentionPeriod(class string) (time.Duration, error) {
	switch class {
	case RetentionStandard:
		return 90 * 24 * time.Hour, nil
	case RetentionLawEnforcement:
		return 180 * 24 * time.Hour, nil
	case RetentionLegal:
		return 365 * 24 * time.Hour, nil
	case RetentionEmergency:
		return 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownRetentionClass, class)
}

// AgencyGateway submits filed cases to an external agency. Status
// transitions past "submitted" arrive through ApplyAgencyUpdate; the engine
// exposes that interface, it does not implement agency behavior.
type AgencyGateway interface {
	Submit(ctx context.Context, report *store.CaseReport) (reference string, err error)
}

type Manager struct {
	Logger  *slog.Logger
	Holds   store.HoldStore
	Cases   store.CaseStore
	Flags   store.FlagStore
	Alerts  store.AlertStore
	Content store.ContentStore
	Audit   store.AuditLog
	Gateway AgencyGateway
}

// HoldRequest scopes a new legal hold. At least one of the scope fields must
// be set.
type HoldRequest struct {
	RetentionClass  string
	Reason          string
	CreatedBy       string
	CaseID          string
	UserIDs         []string
	ConversationIDs []string
	MessageIDs      []string
	RangeFrom       *time.Time
	RangeTo         *time.Time
}

func (m *Manager) CreateHold(ctx context.Context, req HoldRequest) (*store.EvidenceHold, error) {
	period, err := RetentionPeriod(req.RetentionClass)
	if err != nil {
		return nil, err
	}
	if len(req.UserIDs) == 0 && len(req.ConversationIDs) == 0 && len(req.MessageIDs) == 0 && req.RangeFrom == nil {
		return nil, fmt.Errorf("evidence hold requires a scope")
	}

	hold := &store.EvidenceHold{
		ID:              uuid.NewString(),
		Status:          store.HoldActive,
		RetentionClass:  req.RetentionClass,
		Reason:          req.Reason,
		CreatedBy:       req.CreatedBy,
		CaseID:          req.CaseID,
		UserIDs:         req.UserIDs,
		ConversationIDs: req.ConversationIDs,
		MessageIDs:      req.MessageIDs,
		RangeFrom:       req.RangeFrom,
		RangeTo:         req.RangeTo,
		ExpiresAt:       time.Now().Add(period),
	}
	if err := m.Holds.CreateHold(ctx, hold); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, "hold_created", req.CreatedBy, "hold", hold.ID, true, "", req.RetentionClass)
	m.Logger.Info("evidence hold created", "holdID", hold.ID, "class", req.RetentionClass, "expiresAt", hold.ExpiresAt)
	return hold, nil
}

func (m *Manager) ReleaseHold(ctx context.Context, holdID, actor string) (*store.EvidenceHold, error) {
	hold, err := m.Holds.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	hold.Status = store.HoldReleased
	hold.ReleasedBy = actor
	hold.ReleasedAt = &now
	if err := m.Holds.UpdateHold(ctx, hold); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, "hold_released", actor, "hold", hold.ID, true, "", "")
	return hold, nil
}

// ExtendHold pushes the hold's expiry out by its retention class period and
// marks it extended.
func (m *Manager) ExtendHold(ctx context.Context, holdID, actor string) (*store.EvidenceHold, error) {
	hold, err := m.Holds.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	period, err := RetentionPeriod(hold.RetentionClass)
	if err != nil {
		return nil, err
	}
	hold.Status = store.HoldExtended
	hold.ExpiresAt = time.Now().Add(period)
	if err := m.Holds.UpdateHold(ctx, hold); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, "hold_extended", actor, "hold", hold.ID, true, "", hold.ExpiresAt.Format(time.RFC3339))
	return hold, nil
}

// BlocksPurge reports whether any hold that still blocks deletion covers the
// message. Queried fresh so a hold created after the message was scheduled
// for deletion still wins.
func (m *Manager) BlocksPurge(ctx context.Context, msg *store.Message) (bool, error) {
	holds, err := m.Holds.BlockingHolds(ctx)
	if err != nil {
		return false, err
	}
	for i := range holds {
		if holds[i].Covers(msg) {
			return true, nil
		}
	}
	return false, nil
}

// SweepExpiredHolds transitions blocking holds past their expiry to expired.
func (m *Manager) SweepExpiredHolds(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		expired, err := m.Holds.ExpiredHolds(ctx, time.Now(), batchSize)
		if err != nil {
			return total, err
		}
		if len(expired) == 0 {
			return total, nil
		}
		for i := range expired {
			hold := &expired[i]
			hold.Status = store.HoldExpired
			if err := m.Holds.UpdateHold(ctx, hold); err != nil {
				m.Logger.Error("failed to expire hold", "err", err, "holdID", hold.ID)
				continue
			}
			m.appendAudit(ctx, "hold_expired", "system", "hold", hold.ID, true, "", "")
			total++
		}
		if len(expired) < batchSize {
			return total, nil
		}
	}
}

// FileReport opens a law-enforcement case from an existing content flag. The
// report snapshots the flagged message, the user's profile fields, and the
// analysis results at filing time; later edits or deletions do not change it.
// Filing always escalates the source flag and raises a critical alert, and
// opens a law-enforcement retention hold over the evidence.
func (m *Manager) FileReport(ctx context.Context, flagID, agency, urgency, actor string) (*store.CaseReport, error) {
	flag, err := m.Flags.GetContentFlag(ctx, flagID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	snapshot := store.CaseSnapshot{
		MessageID:  flag.MessageID,
		UserID:     flag.UserID,
		RiskScore:  flag.RiskScore,
		Severity:   flag.Severity,
		Detections: flag.Detections,
		CapturedAt: now,
	}
	if msg, err := m.Content.GetMessage(ctx, flag.MessageID); err == nil {
		snapshot.MessageContent = msg.Content
		snapshot.MessageSentAt = msg.CreatedAt
	}
	if user, err := m.Content.GetUser(ctx, flag.UserID); err == nil {
		snapshot.UserHandle = user.Handle
		snapshot.UserDisplay = user.DisplayName
		snapshot.UserCreatedAt = user.CreatedAt
	}

	caseID := fmt.Sprintf("LE-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))

	hold, err := m.CreateHold(ctx, HoldRequest{
		RetentionClass:  RetentionLawEnforcement,
		Reason:          "law enforcement case " + caseID,
		CreatedBy:       actor,
		CaseID:          caseID,
		UserIDs:         []string{flag.UserID},
		MessageIDs:      []string{flag.MessageID},
		ConversationIDs: []string{flag.ConversationID},
	})
	if err != nil {
		return nil, fmt.Errorf("opening preservation hold: %w", err)
	}

	report := &store.CaseReport{
		ID:              uuid.NewString(),
		CaseID:          caseID,
		FlagID:          flag.ID,
		UserID:          flag.UserID,
		Agency:          agency,
		Urgency:         urgency,
		Status:          store.CaseDraft,
		Snapshot:        snapshot,
		HoldID:          hold.ID,
		StatusUpdatedAt: now,
	}
	if err := m.Cases.CreateCase(ctx, report); err != nil {
		return nil, err
	}

	// the source flag is escalated regardless of submission outcome
	flag.Escalated = true
	flag.EscalatedTo = "law_enforcement"
	flag.EscalatedAt = &now
	flag.Status = store.FlagStatusEscalated
	if err := m.Flags.UpdateContentFlag(ctx, flag); err != nil {
		m.Logger.Error("failed to escalate flag for case", "err", err, "flagID", flag.ID, "caseID", caseID)
	}

	alert := &store.SecurityAlert{
		ID:             uuid.NewString(),
		Category:       "law_enforcement_report",
		Severity:       store.AlertCritical,
		Status:         store.AlertStatusActive,
		Message:        fmt.Sprintf("case %s filed with %s", caseID, agency),
		UserID:         flag.UserID,
		ConversationID: flag.ConversationID,
		FlagID:         flag.ID,
		CaseID:         caseID,
	}
	if err := m.Alerts.CreateAlert(ctx, alert); err != nil {
		m.Logger.Error("failed to create case alert", "err", err, "caseID", caseID)
	}

	if m.Gateway != nil {
		ref, err := m.Gateway.Submit(ctx, report)
		submittedAt := time.Now()
		if err != nil {
			report.Status = store.CaseFailed
			report.FailureReason = err.Error()
			report.StatusUpdatedAt = submittedAt
			if uerr := m.Cases.UpdateCase(ctx, report); uerr != nil {
				m.Logger.Error("failed to record case submission failure", "err", uerr, "caseID", caseID)
			}
			m.appendAudit(ctx, "case_filed", actor, "case", caseID, false, "submission_failed", err.Error())
			return report, fmt.Errorf("submitting case to agency: %w", err)
		}
		report.Status = store.CaseSubmitted
		report.SubmittedAt = &submittedAt
		report.AgencyReference = ref
		report.StatusUpdatedAt = submittedAt
		if err := m.Cases.UpdateCase(ctx, report); err != nil {
			return nil, err
		}
	}

	m.appendAudit(ctx, "case_filed", actor, "case", caseID, true, "", agency)
	m.Logger.Warn("law enforcement case filed", "caseID", caseID, "flagID", flag.ID, "agency", agency, "urgency", urgency)
	return report, nil
}

// ApplyAgencyUpdate records an external agency's status change for a case.
// The progression is monotonic; failed and rejected are terminal from any
// pre-closed state, and closed cases never move again.
func (m *Manager) ApplyAgencyUpdate(ctx context.Context, caseID string, status store.CaseStatus, reference, note string) (*store.CaseReport, error) {
	report, err := m.Cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !report.Status.CanTransition(status) {
		m.appendAudit(ctx, "case_status_update", "agency", "case", caseID, false, "invalid_transition",
			fmt.Sprintf("%s -> %s", report.Status, status))
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, report.Status, status)
	}
	report.Status = status
	report.StatusUpdatedAt = time.Now()
	if reference != "" {
		report.AgencyReference = reference
	}
	if status == store.CaseFailed || status == store.CaseRejected {
		report.FailureReason = note
	}
	if err := m.Cases.UpdateCase(ctx, report); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, "case_status_update", "agency", "case", caseID, true, "", string(status))
	return report, nil
}

func (m *Manager) appendAudit(ctx context.Context, action, actor, targetType, targetID string, success bool, errCode, note string) {
	entry := &store.AuditEntry{
		Action:     action,
		ActorID:    actor,
		TargetType: targetType,
		TargetID:   targetID,
		Success:    success,
		ErrorCode:  errCode,
		Note:       note,
	}
	if err := m.Audit.Append(ctx, entry); err != nil {
		m.Logger.Error("failed to append audit entry", "err", err, "action", action)
	}
}
