package store

import (
	"fmt"
	"time"
)

// Severity buckets derived from a continuous risk score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank order for comparisons; unknown values sort lowest
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

type FlagStatus string

const (
	FlagStatusPending       FlagStatus = "pending"
	FlagStatusConfirmed     FlagStatus = "confirmed"
	FlagStatusFalsePositive FlagStatus = "false_positive"
	FlagStatusResolved      FlagStatus = "resolved"
	FlagStatusEscalated     FlagStatus = "escalated"
)

func (s FlagStatus) Valid() bool {
	switch s {
	case FlagStatusPending, FlagStatusConfirmed, FlagStatusFalsePositive, FlagStatusResolved, FlagStatusEscalated:
		return true
	}
	return false
}

// Moderation actions a reviewer (or the policy engine) can request.
type ModAction string

const (
	ModActionNone              ModAction = "none"
	ModActionHideMessage       ModAction = "hide_message"
	ModActionWarn              ModAction = "warn"
	ModActionBlockUser         ModAction = "block_user"
	ModActionReportAuthorities ModAction = "report_authorities"
	ModActionEmergencyBlock    ModAction = "emergency_block"
	ModActionPreserveEvidence  ModAction = "preserve_evidence"
)

func (a ModAction) Valid() bool {
	switch a {
	case ModActionNone, ModActionHideMessage, ModActionWarn, ModActionBlockUser,
		ModActionReportAuthorities, ModActionEmergencyBlock, ModActionPreserveEvidence:
		return true
	}
	return false
}

// One analyzer detection on a piece of content.
type Detection struct {
	Type       string  `json:"type"`
	Category   string  `json:"category"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// ContentFlag is one risk assessment of one content item. Rows are
// compliance-relevant and never physically deleted; resolution happens via
// status transitions only.
type ContentFlag struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MessageID      string  `gorm:"index;index:idx_flag_scan_msg,unique"`
	ScanID         *string `gorm:"index:idx_flag_scan_msg,unique"`
	ConversationID string  `gorm:"index"`
	UserID         string  `gorm:"index"`

	RiskScore      float64
	Confidence     float64
	Severity       Severity    `gorm:"index"`
	Status         FlagStatus  `gorm:"index"`
	ReviewRequired bool
	Detections     []Detection `gorm:"serializer:json"`

	Escalated   bool
	EscalatedTo string
	EscalatedAt *time.Time

	// set by human review; re-review fully overwrites (last write wins)
	ReviewedBy       string
	ReviewedAt       *time.Time
	ReviewNotes      string
	ModerationAction ModAction
}

// ActivityFlag is a behavior-level observation about a user, spanning
// multiple messages. Same severity/status vocabulary as ContentFlag but an
// independent lifecycle.
type ActivityFlag struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID       string `gorm:"index"`
	ActivityType string `gorm:"index"`
	RiskScore    float64
	Severity     Severity
	Status       FlagStatus
	ReportedBy   string
	Notes        string

	// pointers to individual messages backing the observation
	EvidenceMessageIDs []string `gorm:"serializer:json"`
}

type SuspensionType string

const (
	SuspensionWarning        SuspensionType = "warning"
	SuspensionTempRestrict   SuspensionType = "temporary_restriction"
	SuspensionTempBan        SuspensionType = "temporary_ban"
	SuspensionPermanentBan   SuspensionType = "permanent_ban"
	SuspensionEmergencyBlock SuspensionType = "emergency_block"
)

func (t SuspensionType) Valid() bool {
	switch t {
	case SuspensionWarning, SuspensionTempRestrict, SuspensionTempBan, SuspensionPermanentBan, SuspensionEmergencyBlock:
		return true
	}
	return false
}

type SuspensionSeverity string

const (
	SuspensionSevWarning  SuspensionSeverity = "warning"
	SuspensionSevMinor    SuspensionSeverity = "minor"
	SuspensionSevMajor    SuspensionSeverity = "major"
	SuspensionSevSevere   SuspensionSeverity = "severe"
	SuspensionSevCritical SuspensionSeverity = "critical"
)

func (s SuspensionSeverity) Valid() bool {
	switch s {
	case SuspensionSevWarning, SuspensionSevMinor, SuspensionSevMajor, SuspensionSevSevere, SuspensionSevCritical:
		return true
	}
	return false
}

// Capability booleans while a suspension is active. All default to false
// (deny) so the zero value is the most restrictive set.
type Restrictions struct {
	CanSendMessages       bool
	CanCreateConversation bool
	CanJoinConversation   bool
	CanUploadMedia        bool
	CanChangeProfile      bool
}

// Suspension is a restriction applied to one user. Only the suspension
// manager writes these rows; nil ExpiresAt means permanent.
type Suspension struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID   string             `gorm:"index"`
	Type     SuspensionType
	Severity SuspensionSeverity
	Reason   string

	Restrictions Restrictions `gorm:"embedded;embeddedPrefix:restrict_"`

	IsActive  bool `gorm:"index"`
	ExpiresAt *time.Time

	CreatedBy         string
	EvidencePreserved bool

	LiftedBy string
	LiftedAt *time.Time
}

// true when the row claims active but the expiry has already passed; the
// sweep resolves this, and permission checks must not trust IsActive alone
func (s *Suspension) ExpiredAt(now time.Time) bool {
	return s.IsActive && s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

func (s *Suspension) InEffect(now time.Time) bool {
	return s.IsActive && (s.ExpiresAt == nil || s.ExpiresAt.After(now))
}

type AlertSeverity string

const (
	AlertInfo      AlertSeverity = "info"
	AlertLow       AlertSeverity = "low"
	AlertMedium    AlertSeverity = "medium"
	AlertHigh      AlertSeverity = "high"
	AlertCritical  AlertSeverity = "critical"
	AlertEmergency AlertSeverity = "emergency"
)

type AlertStatus string

const (
	AlertStatusActive        AlertStatus = "active"
	AlertStatusInvestigating AlertStatus = "investigating"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusEscalated     AlertStatus = "escalated"
	AlertStatusDismissed     AlertStatus = "dismissed"
	AlertStatusPendingReview AlertStatus = "pending_review"
)

// resolution is one-way: a resolved or dismissed alert never reopens
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusDismissed
}

// SecurityAlert is a notification-worthy event. Never auto-deleted.
type SecurityAlert struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Category string        `gorm:"index"`
	Severity AlertSeverity `gorm:"index"`
	Status   AlertStatus   `gorm:"index"`
	Message  string

	UserID         string `gorm:"index"`
	ConversationID string
	FlagID         string
	CaseID         string

	AcknowledgedBy string
	AcknowledgedAt *time.Time
	ResolvedBy     string
	ResolvedAt     *time.Time
}

type CaseStatus string

const (
	CaseDraft          CaseStatus = "draft"
	CaseSubmitted      CaseStatus = "submitted"
	CaseAcknowledged   CaseStatus = "acknowledged"
	CaseInvestigating  CaseStatus = "investigating"
	CaseInfoRequested  CaseStatus = "additional_info_requested"
	CaseClosed         CaseStatus = "closed"
	CaseFailed         CaseStatus = "failed"
	CaseRejected       CaseStatus = "rejected"
)

// caseRank encodes the monotonic progression of the happy path. failed and
// rejected are terminal from any pre-closed state.
func caseRank(s CaseStatus) int {
	switch s {
	case CaseDraft:
		return 0
	case CaseSubmitted:
		return 1
	case CaseAcknowledged:
		return 2
	case CaseInvestigating:
		return 3
	case CaseInfoRequested:
		return 4
	case CaseClosed:
		return 5
	}
	return -1
}

// CanTransition reports whether a case may move from to the given status.
func (s CaseStatus) CanTransition(to CaseStatus) bool {
	if s == CaseClosed || s == CaseFailed || s == CaseRejected {
		return false
	}
	if to == CaseFailed || to == CaseRejected {
		return true
	}
	from, next := caseRank(s), caseRank(to)
	if from < 0 || next < 0 {
		return false
	}
	return next > from
}

// Point-in-time evidence captured when a case is filed. The report must not
// change if the user later edits their profile or the message is deleted.
type CaseSnapshot struct {
	MessageID      string      `json:"message_id"`
	MessageContent string      `json:"message_content"`
	MessageSentAt  time.Time   `json:"message_sent_at"`
	UserID         string      `json:"user_id"`
	UserHandle     string      `json:"user_handle"`
	UserDisplay    string      `json:"user_display"`
	UserCreatedAt  time.Time   `json:"user_created_at"`
	RiskScore      float64     `json:"risk_score"`
	Severity       Severity    `json:"severity"`
	Detections     []Detection `json:"detections"`
	CapturedAt     time.Time   `json:"captured_at"`
}

// CaseReport is a case filed with an external law-enforcement agency.
type CaseReport struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	CaseID  string `gorm:"uniqueIndex"`
	FlagID  string `gorm:"index"`
	UserID  string `gorm:"index"`
	Agency  string
	Urgency string
	Status  CaseStatus `gorm:"index"`

	Snapshot CaseSnapshot `gorm:"serializer:json"`

	// evidence hold opened alongside the filing, if any
	HoldID string

	SubmittedAt     *time.Time
	StatusUpdatedAt time.Time
	AgencyReference string
	FailureReason   string
}

type HoldStatus string

const (
	HoldActive   HoldStatus = "active"
	HoldExpired  HoldStatus = "expired"
	HoldReleased HoldStatus = "released"
	HoldExtended HoldStatus = "extended"
)

// a hold in active or extended status blocks deletion of anything in scope
func (s HoldStatus) Blocks() bool {
	return s == HoldActive || s == HoldExtended
}

// EvidenceHold is a legal hold over a scope of users, conversations,
// messages, and/or a date range.
type EvidenceHold struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Status         HoldStatus `gorm:"index"`
	RetentionClass string
	Reason         string
	CreatedBy      string
	CaseID         string

	UserIDs         []string `gorm:"serializer:json"`
	ConversationIDs []string `gorm:"serializer:json"`
	MessageIDs      []string `gorm:"serializer:json"`
	RangeFrom       *time.Time
	RangeTo         *time.Time

	ExpiresAt  time.Time `gorm:"index"`
	ReleasedBy string
	ReleasedAt *time.Time
}

// Covers reports whether the given message falls in the hold's scope.
func (h *EvidenceHold) Covers(msg *Message) bool {
	for _, id := range h.MessageIDs {
		if id == msg.ID {
			return true
		}
	}
	for _, id := range h.ConversationIDs {
		if id == msg.ConversationID {
			return true
		}
	}
	for _, id := range h.UserIDs {
		if id == msg.SenderID {
			return true
		}
	}
	if h.RangeFrom != nil && h.RangeTo != nil &&
		!msg.CreatedAt.Before(*h.RangeFrom) && !msg.CreatedAt.After(*h.RangeTo) {
		return true
	}
	return false
}

// AuditEntry is append-only: one row per state-changing action anywhere in
// the engine, including failed action attempts. Never updated after creation.
type AuditEntry struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	Action     string `gorm:"index"`
	ActorID    string `gorm:"index"`
	TargetType string
	TargetID   string `gorm:"index"`

	Success   bool
	ErrorCode string
	Note      string
}

type MonitoringLevel string

const (
	MonitoringStandard  MonitoringLevel = "standard"
	MonitoringEnhanced  MonitoringLevel = "enhanced"
	MonitoringIntensive MonitoringLevel = "intensive"
)

// BehaviorAnalysis is the rolling risk posture for one user, updated when
// activity reports are scored.
type BehaviorAnalysis struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID          string `gorm:"uniqueIndex"`
	RiskScore       float64
	MonitoringLevel MonitoringLevel
	RequiresAction  bool
	LastEvaluatedAt time.Time
}

// Message is the engine's mirror of platform message rows: enough state to
// score, hide, snapshot, and purge content. Content CRUD itself lives with
// the platform, not here.
type Message struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ConversationID string `gorm:"index"`
	SenderID       string `gorm:"index"`
	Content        string
	ContentType    string

	Hidden       bool
	HiddenReason string
	HiddenAt     *time.Time

	AutoDeleteAt *time.Time `gorm:"index"`
}

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
	ConversationSecret ConversationType = "secret"
)

type Conversation struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Type                     ConversationType
	ParticipantIDs           []string `gorm:"serializer:json"`
	NotifyScreenshotAttempts bool
}

// UserAccount mirrors the profile fields the engine snapshots into case
// reports.
type UserAccount struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Handle      string
	DisplayName string
}

// ScreenshotAttempt records every attempt, blocked or not, with device
// metadata. Non-punitive: nothing else references these rows.
type ScreenshotAttempt struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	ConversationID string `gorm:"index"`
	UserID         string `gorm:"index"`
	Method         string
	DeviceInfo     string
	Blocked        bool
}

type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanCanceled  ScanStatus = "canceled"
)

// ConversationScan tracks one batch re-analysis of a conversation, so an
// interrupted scan can resume from its cursor without duplicating flags.
type ConversationScan struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ConversationID  string `gorm:"index"`
	LookbackDays    int
	Status          ScanStatus
	Cursor          string
	MessagesScanned int
	MessagesFlagged int
	TotalRisk       float64
	CompletedAt     *time.Time
}

func (s *ConversationScan) Summary() string {
	return fmt.Sprintf("scan %s: %d scanned, %d flagged, total risk %.2f", s.ID, s.MessagesScanned, s.MessagesFlagged, s.TotalRisk)
}
