package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// GormStore implements every store interface over a single gorm handle.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// ===== FlagStore

func (s *GormStore) CreateContentFlag(ctx context.Context, flag *ContentFlag) error {
	return translateErr(s.db.WithContext(ctx).Create(flag).Error)
}

func (s *GormStore) GetContentFlag(ctx context.Context, id string) (*ContentFlag, error) {
	var flag ContentFlag
	if err := s.db.WithContext(ctx).First(&flag, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &flag, nil
}

func (s *GormStore) GetScanFlag(ctx context.Context, scanID, messageID string) (*ContentFlag, error) {
	var flag ContentFlag
	err := s.db.WithContext(ctx).First(&flag, "scan_id = ? AND message_id = ?", scanID, messageID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &flag, nil
}

func (s *GormStore) UpdateContentFlag(ctx context.Context, flag *ContentFlag) error {
	return translateErr(s.db.WithContext(ctx).Save(flag).Error)
}

func (s *GormStore) ListContentFlags(ctx context.Context, q FlagQuery) ([]ContentFlag, error) {
	tx := s.db.WithContext(ctx).Model(&ContentFlag{})
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Severity != "" {
		tx = tx.Where("severity = ?", q.Severity)
	}
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.ConversationID != "" {
		tx = tx.Where("conversation_id = ?", q.ConversationID)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		tx = tx.Where("created_at < ?", q.Until)
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var out []ContentFlag
	if err := tx.Order("created_at desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

func (s *GormStore) CreateActivityFlag(ctx context.Context, flag *ActivityFlag) error {
	return translateErr(s.db.WithContext(ctx).Create(flag).Error)
}

func (s *GormStore) GetActivityFlag(ctx context.Context, id string) (*ActivityFlag, error) {
	var flag ActivityFlag
	if err := s.db.WithContext(ctx).First(&flag, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &flag, nil
}

func (s *GormStore) UpdateActivityFlag(ctx context.Context, flag *ActivityFlag) error {
	return translateErr(s.db.WithContext(ctx).Save(flag).Error)
}

// ===== AlertStore

func (s *GormStore) CreateAlert(ctx context.Context, alert *SecurityAlert) error {
	return translateErr(s.db.WithContext(ctx).Create(alert).Error)
}

func (s *GormStore) GetAlert(ctx context.Context, id string) (*SecurityAlert, error) {
	var alert SecurityAlert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &alert, nil
}

func (s *GormStore) UpdateAlert(ctx context.Context, alert *SecurityAlert) error {
	return translateErr(s.db.WithContext(ctx).Save(alert).Error)
}

func (s *GormStore) ListAlerts(ctx context.Context, status AlertStatus, severity AlertSeverity, limit int) ([]SecurityAlert, error) {
	tx := s.db.WithContext(ctx).Model(&SecurityAlert{})
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	if severity != "" {
		tx = tx.Where("severity = ?", severity)
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var out []SecurityAlert
	if err := tx.Order("created_at desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

// ===== AuditLog

func (s *GormStore) Append(ctx context.Context, entry *AuditEntry) error {
	return translateErr(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *GormStore) ListByTarget(ctx context.Context, targetType, targetID string) ([]AuditEntry, error) {
	var out []AuditEntry
	err := s.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

// ===== SuspensionStore

func (s *GormStore) CreateSuspension(ctx context.Context, susp *Suspension) error {
	return translateErr(s.db.WithContext(ctx).Create(susp).Error)
}

func (s *GormStore) GetSuspension(ctx context.Context, id string) (*Suspension, error) {
	var susp Suspension
	if err := s.db.WithContext(ctx).First(&susp, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &susp, nil
}

func (s *GormStore) ActiveSuspension(ctx context.Context, userID string) (*Suspension, error) {
	var susp Suspension
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at desc").
		First(&susp).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &susp, nil
}

func (s *GormStore) UpdateSuspension(ctx context.Context, susp *Suspension) error {
	return translateErr(s.db.WithContext(ctx).Save(susp).Error)
}

func (s *GormStore) ExpiredSuspensions(ctx context.Context, now time.Time, limit int) ([]Suspension, error) {
	var out []Suspension
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

// ===== HoldStore

func (s *GormStore) CreateHold(ctx context.Context, h *EvidenceHold) error {
	return translateErr(s.db.WithContext(ctx).Create(h).Error)
}

func (s *GormStore) GetHold(ctx context.Context, id string) (*EvidenceHold, error) {
	var h EvidenceHold
	if err := s.db.WithContext(ctx).First(&h, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &h, nil
}

func (s *GormStore) UpdateHold(ctx context.Context, h *EvidenceHold) error {
	return translateErr(s.db.WithContext(ctx).Save(h).Error)
}

func (s *GormStore) BlockingHolds(ctx context.Context) ([]EvidenceHold, error) {
	var out []EvidenceHold
	err := s.db.WithContext(ctx).
		Where("status IN ?", []HoldStatus{HoldActive, HoldExtended}).
		Find(&out).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

func (s *GormStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]EvidenceHold, error) {
	var out []EvidenceHold
	err := s.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", []HoldStatus{HoldActive, HoldExtended}, now).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

// ===== CaseStore

func (s *GormStore) CreateCase(ctx context.Context, c *CaseReport) error {
	return translateErr(s.db.WithContext(ctx).Create(c).Error)
}

func (s *GormStore) GetCase(ctx context.Context, caseID string) (*CaseReport, error) {
	var c CaseReport
	if err := s.db.WithContext(ctx).First(&c, "case_id = ?", caseID).Error; err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

func (s *GormStore) UpdateCase(ctx context.Context, c *CaseReport) error {
	return translateErr(s.db.WithContext(ctx).Save(c).Error)
}

// ===== ContentStore

func (s *GormStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var msg Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &msg, nil
}

func (s *GormStore) UpsertMessage(ctx context.Context, msg *Message) error {
	return translateErr(s.db.WithContext(ctx).Save(msg).Error)
}

func (s *GormStore) UpdateMessage(ctx context.Context, msg *Message) error {
	return translateErr(s.db.WithContext(ctx).Save(msg).Error)
}

func (s *GormStore) DeleteMessage(ctx context.Context, id string) error {
	return translateErr(s.db.WithContext(ctx).Delete(&Message{}, "id = ?", id).Error)
}

func (s *GormStore) ConversationMessages(ctx context.Context, convID string, since time.Time, afterID string, limit int) ([]Message, error) {
	tx := s.db.WithContext(ctx).
		Where("conversation_id = ? AND created_at >= ?", convID, since)
	if afterID != "" {
		tx = tx.Where("id > ?", afterID)
	}
	var out []Message
	if err := tx.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

func (s *GormStore) ExpiredMessages(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	var out []Message
	err := s.db.WithContext(ctx).
		Where("auto_delete_at IS NOT NULL AND auto_delete_at < ?", now).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return out, nil
}

func (s *GormStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &conv, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*UserAccount, error) {
	var u UserAccount
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

func (s *GormStore) RecordScreenshotAttempt(ctx context.Context, a *ScreenshotAttempt) error {
	return translateErr(s.db.WithContext(ctx).Create(a).Error)
}

func (s *GormStore) CreateScan(ctx context.Context, scan *ConversationScan) error {
	return translateErr(s.db.WithContext(ctx).Create(scan).Error)
}

func (s *GormStore) GetScan(ctx context.Context, id string) (*ConversationScan, error) {
	var scan ConversationScan
	if err := s.db.WithContext(ctx).First(&scan, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &scan, nil
}

func (s *GormStore) UpdateScan(ctx context.Context, scan *ConversationScan) error {
	return translateErr(s.db.WithContext(ctx).Save(scan).Error)
}

// ===== BehaviorStore

func (s *GormStore) GetBehavior(ctx context.Context, userID string) (*BehaviorAnalysis, error) {
	var b BehaviorAnalysis
	if err := s.db.WithContext(ctx).First(&b, "user_id = ?", userID).Error; err != nil {
		return nil, translateErr(err)
	}
	return &b, nil
}

func (s *GormStore) UpsertBehavior(ctx context.Context, b *BehaviorAnalysis) error {
	return translateErr(s.db.WithContext(ctx).Save(b).Error)
}

// compile-time interface checks
var (
	_ FlagStore       = (*GormStore)(nil)
	_ AlertStore      = (*GormStore)(nil)
	_ AuditLog        = (*GormStore)(nil)
	_ SuspensionStore = (*GormStore)(nil)
	_ HoldStore       = (*GormStore)(nil)
	_ CaseStore       = (*GormStore)(nil)
	_ ContentStore    = (*GormStore)(nil)
	_ BehaviorStore   = (*GormStore)(nil)
)
