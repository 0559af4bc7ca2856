package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of every store interface, for
// tests and local development. Not durable.
type MemStore struct {
	lk sync.Mutex

	contentFlags  map[string]ContentFlag
	activityFlags map[string]ActivityFlag
	alerts        map[string]SecurityAlert
	audit         []AuditEntry
	suspensions   map[string]Suspension
	holds         map[string]EvidenceHold
	cases         map[string]CaseReport
	behaviors     map[string]BehaviorAnalysis
	messages      map[string]Message
	conversations map[string]Conversation
	users         map[string]UserAccount
	screenshots   []ScreenshotAttempt
	scans         map[string]ConversationScan
}

func NewMemStore() *MemStore {
	return &MemStore{
		contentFlags:  make(map[string]ContentFlag),
		activityFlags: make(map[string]ActivityFlag),
		alerts:        make(map[string]SecurityAlert),
		suspensions:   make(map[string]Suspension),
		holds:         make(map[string]EvidenceHold),
		cases:         make(map[string]CaseReport),
		behaviors:     make(map[string]BehaviorAnalysis),
		messages:      make(map[string]Message),
		conversations: make(map[string]Conversation),
		users:         make(map[string]UserAccount),
		scans:         make(map[string]ConversationScan),
	}
}

// ===== FlagStore

func (s *MemStore) CreateContentFlag(ctx context.Context, flag *ContentFlag) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.contentFlags[flag.ID]; ok {
		return ErrConflict
	}
	if flag.ScanID != nil {
		for _, f := range s.contentFlags {
			if f.ScanID != nil && *f.ScanID == *flag.ScanID && f.MessageID == flag.MessageID {
				return ErrConflict
			}
		}
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now()
	}
	flag.UpdatedAt = time.Now()
	s.contentFlags[flag.ID] = *flag
	return nil
}

func (s *MemStore) GetContentFlag(ctx context.Context, id string) (*ContentFlag, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	f, ok := s.contentFlags[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (s *MemStore) GetScanFlag(ctx context.Context, scanID, messageID string) (*ContentFlag, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, f := range s.contentFlags {
		if f.ScanID != nil && *f.ScanID == scanID && f.MessageID == messageID {
			out := f
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) UpdateContentFlag(ctx context.Context, flag *ContentFlag) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.contentFlags[flag.ID]; !ok {
		return ErrNotFound
	}
	flag.UpdatedAt = time.Now()
	s.contentFlags[flag.ID] = *flag
	return nil
}

func (s *MemStore) ListContentFlags(ctx context.Context, q FlagQuery) ([]ContentFlag, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []ContentFlag
	for _, f := range s.contentFlags {
		if q.Status != "" && f.Status != q.Status {
			continue
		}
		if q.Severity != "" && f.Severity != q.Severity {
			continue
		}
		if q.UserID != "" && f.UserID != q.UserID {
			continue
		}
		if q.ConversationID != "" && f.ConversationID != q.ConversationID {
			continue
		}
		if !q.Since.IsZero() && f.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !f.CreatedAt.Before(q.Until) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemStore) CreateActivityFlag(ctx context.Context, flag *ActivityFlag) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.activityFlags[flag.ID]; ok {
		return ErrConflict
	}
	flag.CreatedAt = time.Now()
	flag.UpdatedAt = flag.CreatedAt
	s.activityFlags[flag.ID] = *flag
	return nil
}

func (s *MemStore) GetActivityFlag(ctx context.Context, id string) (*ActivityFlag, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	f, ok := s.activityFlags[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (s *MemStore) UpdateActivityFlag(ctx context.Context, flag *ActivityFlag) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.activityFlags[flag.ID]; !ok {
		return ErrNotFound
	}
	flag.UpdatedAt = time.Now()
	s.activityFlags[flag.ID] = *flag
	return nil
}

// ===== AlertStore

func (s *MemStore) CreateAlert(ctx context.Context, alert *SecurityAlert) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.alerts[alert.ID]; ok {
		return ErrConflict
	}
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = alert.CreatedAt
	s.alerts[alert.ID] = *alert
	return nil
}

func (s *MemStore) GetAlert(ctx context.Context, id string) (*SecurityAlert, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemStore) UpdateAlert(ctx context.Context, alert *SecurityAlert) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return ErrNotFound
	}
	alert.UpdatedAt = time.Now()
	s.alerts[alert.ID] = *alert
	return nil
}

func (s *MemStore) ListAlerts(ctx context.Context, status AlertStatus, severity AlertSeverity, limit int) ([]SecurityAlert, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []SecurityAlert
	for _, a := range s.alerts {
		if status != "" && a.Status != status {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ===== AuditLog

func (s *MemStore) Append(ctx context.Context, entry *AuditEntry) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	entry.ID = uint(len(s.audit) + 1)
	entry.CreatedAt = time.Now()
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *MemStore) ListByTarget(ctx context.Context, targetType, targetID string) ([]AuditEntry, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []AuditEntry
	for _, e := range s.audit {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ===== SuspensionStore

func (s *MemStore) CreateSuspension(ctx context.Context, susp *Suspension) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.suspensions[susp.ID]; ok {
		return ErrConflict
	}
	susp.CreatedAt = time.Now()
	susp.UpdatedAt = susp.CreatedAt
	s.suspensions[susp.ID] = *susp
	return nil
}

func (s *MemStore) GetSuspension(ctx context.Context, id string) (*Suspension, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	susp, ok := s.suspensions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &susp, nil
}

func (s *MemStore) ActiveSuspension(ctx context.Context, userID string) (*Suspension, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var found *Suspension
	for _, susp := range s.suspensions {
		if susp.UserID != userID || !susp.IsActive {
			continue
		}
		if found == nil || susp.CreatedAt.After(found.CreatedAt) {
			cp := susp
			found = &cp
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemStore) UpdateSuspension(ctx context.Context, susp *Suspension) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.suspensions[susp.ID]; !ok {
		return ErrNotFound
	}
	susp.UpdatedAt = time.Now()
	s.suspensions[susp.ID] = *susp
	return nil
}

func (s *MemStore) ExpiredSuspensions(ctx context.Context, now time.Time, limit int) ([]Suspension, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []Suspension
	for _, susp := range s.suspensions {
		if susp.IsActive && susp.ExpiresAt != nil && susp.ExpiresAt.Before(now) {
			out = append(out, susp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ===== HoldStore

func (s *MemStore) CreateHold(ctx context.Context, h *EvidenceHold) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.holds[h.ID]; ok {
		return ErrConflict
	}
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	s.holds[h.ID] = *h
	return nil
}

func (s *MemStore) GetHold(ctx context.Context, id string) (*EvidenceHold, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

func (s *MemStore) UpdateHold(ctx context.Context, h *EvidenceHold) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.holds[h.ID]; !ok {
		return ErrNotFound
	}
	h.UpdatedAt = time.Now()
	s.holds[h.ID] = *h
	return nil
}

func (s *MemStore) BlockingHolds(ctx context.Context) ([]EvidenceHold, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []EvidenceHold
	for _, h := range s.holds {
		if h.Status.Blocks() {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *MemStore) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]EvidenceHold, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []EvidenceHold
	for _, h := range s.holds {
		if h.Status.Blocks() && h.ExpiresAt.Before(now) {
			out = append(out, h)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ===== CaseStore

func (s *MemStore) CreateCase(ctx context.Context, c *CaseReport) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, existing := range s.cases {
		if existing.CaseID == c.CaseID {
			return ErrConflict
		}
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.cases[c.CaseID] = *c
	return nil
}

func (s *MemStore) GetCase(ctx context.Context, caseID string) (*CaseReport, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemStore) UpdateCase(ctx context.Context, c *CaseReport) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.cases[c.CaseID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = time.Now()
	s.cases[c.CaseID] = *c
	return nil
}

// ===== ContentStore

func (s *MemStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemStore) UpsertMessage(ctx context.Context, msg *Message) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = time.Now()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *MemStore) UpdateMessage(ctx context.Context, msg *Message) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.messages[msg.ID]; !ok {
		return ErrNotFound
	}
	msg.UpdatedAt = time.Now()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *MemStore) DeleteMessage(ctx context.Context, id string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.messages, id)
	return nil
}

func (s *MemStore) ConversationMessages(ctx context.Context, convID string, since time.Time, afterID string, limit int) ([]Message, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.ConversationID != convID || m.CreatedAt.Before(since) {
			continue
		}
		if afterID != "" && m.ID <= afterID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ExpiredMessages(ctx context.Context, now time.Time, limit int) ([]Message, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.AutoDeleteAt != nil && m.AutoDeleteAt.Before(now) {
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemStore) PutConversation(conv Conversation) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.conversations[conv.ID] = conv
}

func (s *MemStore) GetUser(ctx context.Context, id string) (*UserAccount, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemStore) PutUser(u UserAccount) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.users[u.ID] = u
}

func (s *MemStore) RecordScreenshotAttempt(ctx context.Context, a *ScreenshotAttempt) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	a.ID = uint(len(s.screenshots) + 1)
	a.CreatedAt = time.Now()
	s.screenshots = append(s.screenshots, *a)
	return nil
}

// ScreenshotAttempts returns all recorded attempts, for tests.
func (s *MemStore) ScreenshotAttempts() []ScreenshotAttempt {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := make([]ScreenshotAttempt, len(s.screenshots))
	copy(out, s.screenshots)
	return out
}

func (s *MemStore) CreateScan(ctx context.Context, scan *ConversationScan) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.scans[scan.ID]; ok {
		return ErrConflict
	}
	scan.CreatedAt = time.Now()
	scan.UpdatedAt = scan.CreatedAt
	s.scans[scan.ID] = *scan
	return nil
}

func (s *MemStore) GetScan(ctx context.Context, id string) (*ConversationScan, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	sc, ok := s.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sc, nil
}

func (s *MemStore) UpdateScan(ctx context.Context, scan *ConversationScan) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.scans[scan.ID]; !ok {
		return ErrNotFound
	}
	scan.UpdatedAt = time.Now()
	s.scans[scan.ID] = *scan
	return nil
}

// ===== BehaviorStore

func (s *MemStore) GetBehavior(ctx context.Context, userID string) (*BehaviorAnalysis, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	b, ok := s.behaviors[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemStore) UpsertBehavior(ctx context.Context, b *BehaviorAnalysis) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = time.Now()
	s.behaviors[b.UserID] = *b
	return nil
}

var (
	_ FlagStore       = (*MemStore)(nil)
	_ AlertStore      = (*MemStore)(nil)
	_ AuditLog        = (*MemStore)(nil)
	_ SuspensionStore = (*MemStore)(nil)
	_ HoldStore       = (*MemStore)(nil)
	_ CaseStore       = (*MemStore)(nil)
	_ ContentStore    = (*MemStore)(nil)
	_ BehaviorStore   = (*MemStore)(nil)
)
