package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/haven-msg/sentinel/moderation/store"
)

// Bulk cleanup kinds. Conversation cleanups select by age inside one
// conversation; expired-message cleanups select everything past its
// auto-delete time, same as the background purge loop.
const (
	KindConversationMessages = "conversation_messages"
	KindExpiredMessages      = "expired_messages"
)

// BulkRequest selects messages for an admin-initiated bulk deletion. DryRun
// walks the exact same selection and hold checks without deleting, so its
// counts predict a wet run over unchanged data.
type BulkRequest struct {
	// one of the Kind constants; defaults to conversation_messages
	Kind           string
	ConversationID string
	OlderThanDays  int
	DryRun         bool
	RequestedBy    string
}

func (r *BulkRequest) Validate() error {
	if r.Kind == "" {
		r.Kind = KindConversationMessages
	}
	switch r.Kind {
	case KindConversationMessages:
		if r.ConversationID == "" {
			return fmt.Errorf("conversation cleanup requires a conversation id")
		}
		if r.OlderThanDays <= 0 {
			return fmt.Errorf("conversation cleanup requires a positive age cutoff")
		}
	case KindExpiredMessages:
		// no criteria: expiry is per message
	default:
		return fmt.Errorf("unknown cleanup kind: %s", r.Kind)
	}
	return nil
}

type BulkResult struct {
	Matched     int
	Deleted     int
	HeldBack    int
	DryRun      bool
	CompletedAt time.Time
}

// BulkCleanup deletes (or, dry-run, counts) the messages the request
// selects. Hold-protected messages are counted as held back in both modes.
func (s *Scheduler) BulkCleanup(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	switch req.Kind {
	case KindExpiredMessages:
		return s.bulkExpiredMessages(ctx, req)
	default:
		return s.bulkConversationMessages(ctx, req)
	}
}

func (s *Scheduler) bulkConversationMessages(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if _, err := s.Content.GetConversation(ctx, req.ConversationID); err != nil {
		return nil, err
	}

	batch := s.BatchSize
	if batch <= 0 {
		batch = 100
	}
	cutoff := time.Now().AddDate(0, 0, -req.OlderThanDays)
	res := &BulkResult{DryRun: req.DryRun}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		msgs, err := s.Content.ConversationMessages(ctx, req.ConversationID, time.Time{}, cursor, batch)
		if err != nil {
			return res, err
		}
		if len(msgs) == 0 {
			break
		}
		for i := range msgs {
			msg := &msgs[i]
			cursor = msg.ID
			if !msg.CreatedAt.Before(cutoff) {
				continue
			}
			s.bulkProcess(ctx, msg, req.DryRun, res)
		}
		if len(msgs) < batch {
			break
		}
	}

	s.finishBulk(ctx, req, res)
	return res, nil
}

// bulkExpiredMessages runs the retention purge on demand. The expired-message
// query has no cursor, so already-seen rows are tracked by id; that keeps the
// dry run from reading the same head batch forever (a wet run shrinks the
// result set itself, except for held-back rows).
func (s *Scheduler) bulkExpiredMessages(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 100
	}
	res := &BulkResult{DryRun: req.DryRun}
	seen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		msgs, err := s.Content.ExpiredMessages(ctx, time.Now(), batch)
		if err != nil {
			return res, err
		}
		progressed := false
		for i := range msgs {
			msg := &msgs[i]
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			progressed = true
			s.bulkProcess(ctx, msg, req.DryRun, res)
		}
		if !progressed || len(msgs) < batch {
			break
		}
	}

	s.finishBulk(ctx, req, res)
	return res, nil
}

// bulkProcess applies the hold guard and delete (or dry-run count) to one
// matched message.
func (s *Scheduler) bulkProcess(ctx context.Context, msg *store.Message, dryRun bool, res *BulkResult) {
	res.Matched++
	blocked, err := s.Evidence.BlocksPurge(ctx, msg)
	if err != nil {
		s.Logger.Error("hold check failed, keeping message", "err", err, "messageID", msg.ID)
		res.HeldBack++
		return
	}
	if blocked {
		res.HeldBack++
		return
	}
	if dryRun {
		res.Deleted++
		return
	}
	if err := s.Content.DeleteMessage(ctx, msg.ID); err != nil {
		s.Logger.Error("bulk delete failed", "err", err, "messageID", msg.ID)
		res.HeldBack++
		return
	}
	messagesPurged.Inc()
	res.Deleted++
}

func (s *Scheduler) finishBulk(ctx context.Context, req BulkRequest, res *BulkResult) {
	res.CompletedAt = time.Now()
	mode := "wet"
	if req.DryRun {
		mode = "dry"
	}
	if !req.DryRun {
		s.appendAuditBulk(ctx, req, res)
	}
	s.Logger.Info("bulk cleanup complete", "kind", req.Kind, "conversationID", req.ConversationID,
		"mode", mode, "matched", res.Matched, "deleted", res.Deleted, "heldBack", res.HeldBack)
}

func (s *Scheduler) appendAuditBulk(ctx context.Context, req BulkRequest, res *BulkResult) {
	targetType, targetID := "conversation", req.ConversationID
	if req.Kind == KindExpiredMessages {
		targetType, targetID = "retention", KindExpiredMessages
	}
	entry := &store.AuditEntry{
		Action:     "bulk_cleanup",
		ActorID:    req.RequestedBy,
		TargetType: targetType,
		TargetID:   targetID,
		Success:    true,
		Note:       fmt.Sprintf("deleted %d of %d matched, %d held back", res.Deleted, res.Matched, res.HeldBack),
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		s.Logger.Error("failed to append audit entry", "err", err, "action", "bulk_cleanup")
	}
}
