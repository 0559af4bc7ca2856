// Package screenguard implements the privacy-protection flow for secret
// conversations. It is deliberately non-punitive: attempts are blocked and
// logged, but the attempting user keeps full access and is never suspended
// or reported. This path never feeds the risk-scoring pipeline.
package screenguard

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/haven-msg/sentinel/moderation/notify"
	"github.com/haven-msg/sentinel/moderation/store"
)

type Guard struct {
	Logger   *slog.Logger
	Content  store.ContentStore
	Audit    store.AuditLog
	Notifier notify.Notifier

	convCache *lru.LRU[string, store.Conversation]
}

func NewGuard(logger *slog.Logger, content store.ContentStore, audit store.AuditLog, notifier notify.Notifier) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Null{}
	}
	return &Guard{
		Logger:    logger,
		Content:   content,
		Audit:     audit,
		Notifier:  notifier,
		convCache: lru.NewLRU[string, store.Conversation](10_000, nil, 5*time.Minute),
	}
}

// Attempt describes one screenshot attempt event from a client.
type Attempt struct {
	ConversationID string
	UserID         string
	Method         string
	DeviceInfo     string
	// when true, participant notifications name the attempting user
	Attribute bool
}

type Result struct {
	Blocked bool `json:"blocked"`
}

// RecordAttempt logs the attempt and decides whether the client must block
// it: blocked exactly when the conversation is secret. The log entry keeps
// method/device metadata regardless of outcome.
func (g *Guard) RecordAttempt(ctx context.Context, att Attempt) (*Result, error) {
	conv, err := g.conversation(ctx, att.ConversationID)
	if err != nil {
		return nil, err
	}
	blocked := conv.Type == store.ConversationSecret

	rec := &store.ScreenshotAttempt{
		ConversationID: att.ConversationID,
		UserID:         att.UserID,
		Method:         att.Method,
		DeviceInfo:     att.DeviceInfo,
		Blocked:        blocked,
	}
	if err := g.Content.RecordScreenshotAttempt(ctx, rec); err != nil {
		return nil, err
	}

	note := "allowed"
	if blocked {
		note = "blocked"
	}
	entry := &store.AuditEntry{
		Action:     "screenshot_attempt",
		ActorID:    att.UserID,
		TargetType: "conversation",
		TargetID:   att.ConversationID,
		Success:    true,
		Note:       note + " method=" + att.Method,
	}
	if err := g.Audit.Append(ctx, entry); err != nil {
		g.Logger.Error("failed to append audit entry", "err", err, "action", "screenshot_attempt")
	}

	if conv.NotifyScreenshotAttempts {
		g.notifyParticipants(ctx, conv, att)
	}

	g.Logger.Debug("screenshot attempt recorded", "conversationID", att.ConversationID, "blocked", blocked, "method", att.Method)
	return &Result{Blocked: blocked}, nil
}

// participants learn that *an* attempt occurred; the attempting user is
// named only when the caller explicitly requests attribution
func (g *Guard) notifyParticipants(ctx context.Context, conv *store.Conversation, att Attempt) {
	var recipients []string
	for _, id := range conv.ParticipantIDs {
		if id != att.UserID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}
	payload := map[string]string{
		"conversation_id": conv.ID,
		"event":           "screenshot_attempt",
	}
	if att.Attribute {
		payload["user_id"] = att.UserID
	}
	// fire-and-forget: delivery failures are logged, not retried
	if err := g.Notifier.Send(ctx, recipients, "screenshot_attempt", payload); err != nil {
		g.Logger.Error("failed to deliver screenshot notification", "err", err, "conversationID", conv.ID)
	}
}

func (g *Guard) conversation(ctx context.Context, id string) (*store.Conversation, error) {
	if conv, ok := g.convCache.Get(id); ok {
		return &conv, nil
	}
	conv, err := g.Content.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	g.convCache.Add(id, *conv)
	return conv, nil
}
