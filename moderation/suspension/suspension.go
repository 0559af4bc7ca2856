// Package suspension owns the user-restriction state machine. No other
// component writes restriction state; everything else requests changes
// through the Manager.
package suspension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haven-msg/sentinel/moderation/store"
)

// returned when an actor tries to lift another admin's emergency block
// without override authority
var ErrNotAuthorized = errors.New("not authorized to lift this suspension")

// ValidationError marks a rejected request as a caller problem. The HTTP
// layer maps these to 400 instead of 500.
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Problem)
}

type Manager struct {
	Logger *slog.Logger
	Store  store.SuspensionStore
	Audit  store.AuditLog
}

func NewManager(logger *slog.Logger, st store.SuspensionStore, audit store.AuditLog) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{Logger: logger, Store: st, Audit: audit}
}

// Request describes one restriction to apply. A nil Duration means the
// suspension is permanent and will never be swept.
type Request struct {
	UserID            string
	Type              store.SuspensionType
	Severity          store.SuspensionSeverity
	Reason            string
	Duration          *time.Duration
	CreatedBy         string
	EvidencePreserved bool
	// nil means the zero-value (all-deny) restriction set
	Restrictions *store.Restrictions
}

func (r *Request) Validate() error {
	if r.UserID == "" {
		return &ValidationError{Field: "userID", Problem: "must not be empty"}
	}
	if !r.Type.Valid() {
		return &ValidationError{Field: "type", Problem: fmt.Sprintf("unknown value %q", r.Type)}
	}
	if !r.Severity.Valid() {
		return &ValidationError{Field: "severity", Problem: fmt.Sprintf("unknown value %q", r.Severity)}
	}
	return nil
}

// Apply creates a suspension for the user. If one is already active it is
// replaced, not stacked: the previous row is deactivated and the new
// restriction set takes effect (most-recent-wins). The audit log keeps the
// full history.
func (m *Manager) Apply(ctx context.Context, req Request) (*store.Suspension, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	prior, err := m.Store.ActiveSuspension(ctx, req.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if prior != nil {
		prior.IsActive = false
		prior.LiftedBy = req.CreatedBy
		prior.LiftedAt = &now
		if err := m.Store.UpdateSuspension(ctx, prior); err != nil {
			return nil, err
		}
		m.appendAudit(ctx, "suspension_replaced", req.CreatedBy, prior.ID, true, "", "replaced by newer suspension")
	}

	var expiresAt *time.Time
	if req.Duration != nil {
		t := now.Add(*req.Duration)
		expiresAt = &t
	}

	susp := &store.Suspension{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Type:              req.Type,
		Severity:          req.Severity,
		Reason:            req.Reason,
		IsActive:          true,
		ExpiresAt:         expiresAt,
		CreatedBy:         req.CreatedBy,
		EvidencePreserved: req.EvidencePreserved,
		// zero-value restrictions: all capabilities denied
	}
	if req.Restrictions != nil {
		susp.Restrictions = *req.Restrictions
	}
	if err := m.Store.CreateSuspension(ctx, susp); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, "suspension_applied", req.CreatedBy, susp.ID, true, "", string(req.Type)+": "+req.Reason)
	m.Logger.Info("suspension applied", "userID", req.UserID, "type", req.Type, "severity", req.Severity, "expiresAt", expiresAt)
	return susp, nil
}

// Lift deactivates the user's active suspension. Emergency blocks can only
// be lifted by their creator unless the actor has override authority.
func (m *Manager) Lift(ctx context.Context, userID, actor string, override bool) (*store.Suspension, error) {
	susp, err := m.Store.ActiveSuspension(ctx, userID)
	if err != nil {
		return nil, err
	}
	if susp.Type == store.SuspensionEmergencyBlock && susp.CreatedBy != actor && !override {
		m.appendAudit(ctx, "suspension_lift", actor, susp.ID, false, "policy_violation", "emergency block lift denied")
		return nil, ErrNotAuthorized
	}
	now := time.Now()
	susp.IsActive = false
	susp.LiftedBy = actor
	susp.LiftedAt = &now
	if err := m.Store.UpdateSuspension(ctx, susp); err != nil {
		return nil, err
	}
	m.appendAudit(ctx, "suspension_lifted", actor, susp.ID, true, "", "")
	return susp, nil
}

// Check reports whether the user is currently restricted, and by what. A row
// that is still marked active but past its expiry does NOT restrict: the
// sweep may lag, and permission checks must not trust IsActive alone.
func (m *Manager) Check(ctx context.Context, userID string) (*store.Suspension, bool, error) {
	susp, err := m.Store.ActiveSuspension(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !susp.InEffect(time.Now()) {
		return susp, false, nil
	}
	return susp, true, nil
}

// SweepExpired deactivates active suspensions whose expiry has passed. This
// is the only automatic state transition; permanent suspensions (nil expiry)
// are never touched. Returns the number of rows transitioned.
func (m *Manager) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		expired, err := m.Store.ExpiredSuspensions(ctx, time.Now(), batchSize)
		if err != nil {
			return total, err
		}
		if len(expired) == 0 {
			return total, nil
		}
		for i := range expired {
			susp := &expired[i]
			susp.IsActive = false
			if err := m.Store.UpdateSuspension(ctx, susp); err != nil {
				// one bad row must not block the rest of the sweep
				m.Logger.Error("failed to expire suspension", "err", err, "suspensionID", susp.ID)
				continue
			}
			m.appendAudit(ctx, "suspension_expired", "system", susp.ID, true, "", "")
			total++
		}
		if len(expired) < batchSize {
			return total, nil
		}
	}
}

func (m *Manager) appendAudit(ctx context.Context, action, actor, suspensionID string, success bool, errCode, note string) {
	entry := &store.AuditEntry{
		Action:     action,
		ActorID:    actor,
		TargetType: "suspension",
		TargetID:   suspensionID,
		Success:    success,
		ErrorCode:  errCode,
		Note:       note,
	}
	if err := m.Audit.Append(ctx, entry); err != nil {
		m.Logger.Error("failed to append audit entry", "err", err, "action", action)
	}
}
