package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	// returned on unique-index collisions and stale-row updates
	ErrConflict = errors.New("conflicting record")
)

// FlagQuery narrows flag listings for reporting. Zero values mean "any".
type FlagQuery struct {
	Status         FlagStatus
	Severity       Severity
	UserID         string
	ConversationID string
	Since          time.Time
	Until          time.Time
	Limit          int
}

type FlagStore interface {
	CreateContentFlag(ctx context.Context, flag *ContentFlag) error
	GetContentFlag(ctx context.Context, id string) (*ContentFlag, error)
	// scan idempotency lookup: one flag per (scanID, messageID) pair
	GetScanFlag(ctx context.Context, scanID, messageID string) (*ContentFlag, error)
	UpdateContentFlag(ctx context.Context, flag *ContentFlag) error
	ListContentFlags(ctx context.Context, q FlagQuery) ([]ContentFlag, error)

	CreateActivityFlag(ctx context.Context, flag *ActivityFlag) error
	GetActivityFlag(ctx context.Context, id string) (*ActivityFlag, error)
	UpdateActivityFlag(ctx context.Context, flag *ActivityFlag) error
}

type AlertStore interface {
	CreateAlert(ctx context.Context, alert *SecurityAlert) error
	GetAlert(ctx context.Context, id string) (*SecurityAlert, error)
	UpdateAlert(ctx context.Context, alert *SecurityAlert) error
	ListAlerts(ctx context.Context, status AlertStatus, severity AlertSeverity, limit int) ([]SecurityAlert, error)
}

// AuditLog is append-only. There is deliberately no update or delete.
type AuditLog interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByTarget(ctx context.Context, targetType, targetID string) ([]AuditEntry, error)
}

type SuspensionStore interface {
	CreateSuspension(ctx context.Context, s *Suspension) error
	GetSuspension(ctx context.Context, id string) (*Suspension, error)
	// most recent active row for the user, ErrNotFound when none
	ActiveSuspension(ctx context.Context, userID string) (*Suspension, error)
	UpdateSuspension(ctx context.Context, s *Suspension) error
	// active rows whose expiry has already passed, bounded for sweeping
	ExpiredSuspensions(ctx context.Context, now time.Time, limit int) ([]Suspension, error)
}

type HoldStore interface {
	CreateHold(ctx context.Context, h *EvidenceHold) error
	GetHold(ctx context.Context, id string) (*EvidenceHold, error)
	UpdateHold(ctx context.Context, h *EvidenceHold) error
	// all holds whose status still blocks deletion
	BlockingHolds(ctx context.Context) ([]EvidenceHold, error)
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]EvidenceHold, error)
}

type CaseStore interface {
	CreateCase(ctx context.Context, c *CaseReport) error
	GetCase(ctx context.Context, caseID string) (*CaseReport, error)
	UpdateCase(ctx context.Context, c *CaseReport) error
}

// ContentStore is the engine's view of mirrored platform content.
type ContentStore interface {
	GetMessage(ctx context.Context, id string) (*Message, error)
	UpsertMessage(ctx context.Context, msg *Message) error
	UpdateMessage(ctx context.Context, msg *Message) error
	DeleteMessage(ctx context.Context, id string) error
	// pages through a conversation ordered by creation time then id
	ConversationMessages(ctx context.Context, convID string, since time.Time, afterID string, limit int) ([]Message, error)
	// messages past their auto-delete time, bounded for purging
	ExpiredMessages(ctx context.Context, now time.Time, limit int) ([]Message, error)

	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetUser(ctx context.Context, id string) (*UserAccount, error)

	RecordScreenshotAttempt(ctx context.Context, a *ScreenshotAttempt) error

	CreateScan(ctx context.Context, s *ConversationScan) error
	GetScan(ctx context.Context, id string) (*ConversationScan, error)
	UpdateScan(ctx context.Context, s *ConversationScan) error
}

type BehaviorStore interface {
	GetBehavior(ctx context.Context, userID string) (*BehaviorAnalysis, error)
	UpsertBehavior(ctx context.Context, b *BehaviorAnalysis) error
}
