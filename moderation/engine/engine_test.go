package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-msg/sentinel/moderation/analysis"
	"github.com/haven-msg/sentinel/moderation/countstore"
	"github.com/haven-msg/sentinel/moderation/store"
)

func TestSubmitContentCritical(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Text:           "planning to exploit them",
	})
	require.NoError(t, err)

	assert.Equal(store.SeverityCritical, flag.Severity)
	assert.True(flag.ReviewRequired)
	assert.True(flag.Escalated)
	assert.Equal("admin", flag.EscalatedTo)
	assert.Equal(store.FlagStatusEscalated, flag.Status)
	assert.NotNil(flag.EscalatedAt)

	alerts, err := mem.ListAlerts(ctx, "", "", 10)
	require.NoError(t, err)
	if assert.Len(alerts, 1) {
		assert.Equal("high_risk_content", alerts[0].Category)
		assert.Equal(store.AlertCritical, alerts[0].Severity)
		assert.Equal(store.AlertStatusActive, alerts[0].Status)
	}

	// same user and conversation within the dedupe window: no second alert
	_, err = eng.SubmitContent(ctx, ContentSubmission{
		MessageID:      "msg-2",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Text:           "exploit again",
	})
	require.NoError(t, err)
	alerts, err = mem.ListAlerts(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Len(alerts, 1)

	// each auto-escalation increments the day bucket, and only that bucket
	n, err := eng.Counters.GetCount(ctx, "escalated", "content", countstore.PeriodDay)
	require.NoError(t, err)
	assert.Equal(2, n)
	n, err = eng.Counters.GetCount(ctx, "escalated", "content", countstore.PeriodTotal)
	require.NoError(t, err)
	assert.Equal(0, n)
}

func TestSubmitContentLowRisk(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Text:           "see you at lunch",
	})
	require.NoError(t, err)

	assert.Equal(store.SeverityLow, flag.Severity)
	assert.False(flag.ReviewRequired)
	assert.False(flag.Escalated)
	assert.Equal(store.FlagStatusPending, flag.Status)

	alerts, err := mem.ListAlerts(ctx, "", "", 10)
	require.NoError(t, err)
	assert.Empty(alerts)
}

type downAnalyzer struct{}

func (downAnalyzer) Analyze(ctx context.Context, content analysis.Content, analysisType string) (*analysis.Assessment, error) {
	return nil, fmt.Errorf("connection refused: %w", analysis.ErrUnavailable)
}

func TestSubmitContentAnalyzerDown(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	eng.Analyzer = downAnalyzer{}
	ctx := context.Background()

	_, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID: "msg-1",
		UserID:    "user-1",
		Text:      "whatever",
	})
	assert.ErrorIs(err, analysis.ErrUnavailable)

	// an unscored item must never become a low-risk flag
	flags, err := mem.ListContentFlags(ctx, store.FlagQuery{})
	require.NoError(t, err)
	assert.Empty(flags)
}

func TestReviewOverwritesAndAudits(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Text:           "i will attack him",
	})
	require.NoError(t, err)
	assert.Equal(store.SeverityHigh, flag.Severity)

	rev := ReviewRequest{
		ReviewedBy: "mod-7",
		Status:     store.FlagStatusConfirmed,
		Action:     store.ModActionNone,
		Notes:      "verified threat context",
	}
	first, err := eng.ReviewFlag(ctx, flag.ID, rev)
	require.NoError(t, err)
	second, err := eng.ReviewFlag(ctx, flag.ID, rev)
	require.NoError(t, err)

	// repeated identical review converges to the same flag state
	assert.Equal(first.Status, second.Status)
	assert.Equal(first.ReviewedBy, second.ReviewedBy)
	assert.Equal(first.ReviewNotes, second.ReviewNotes)
	assert.Equal(first.ModerationAction, second.ModerationAction)

	// but every review lands in the audit log
	entries, err := mem.ListByTarget(ctx, "flag", flag.ID)
	require.NoError(t, err)
	reviewed := 0
	for _, e := range entries {
		if e.Action == "flag_reviewed" {
			reviewed++
		}
	}
	assert.Equal(2, reviewed)
}

func TestReviewLastWriteWins(t *testing.T) {
	assert := assert.New(t)
	eng, _ := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID: "msg-1",
		UserID:    "user-1",
		Text:      "attack",
	})
	require.NoError(t, err)

	_, err = eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusConfirmed,
		Notes:      "first pass",
	})
	require.NoError(t, err)

	updated, err := eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-2",
		Status:     store.FlagStatusFalsePositive,
		Notes:      "second look, clearly a game discussion",
	})
	require.NoError(t, err)

	assert.Equal("mod-2", updated.ReviewedBy)
	assert.Equal(store.FlagStatusFalsePositive, updated.Status)
	assert.Equal("second look, clearly a game discussion", updated.ReviewNotes)
}

func TestReviewHideMessage(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	require.NoError(t, mem.UpsertMessage(ctx, &store.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "user-1",
		Content:        "attack tonight",
	}))
	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Text:           "attack tonight",
	})
	require.NoError(t, err)

	_, err = eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusConfirmed,
		Action:     store.ModActionHideMessage,
		Notes:      "credible threat",
	})
	require.NoError(t, err)

	msg, err := mem.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(msg.Hidden)
	assert.Equal("credible threat", msg.HiddenReason)

	// hiding an already-hidden message is a no-op, not an error
	_, err = eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusConfirmed,
		Action:     store.ModActionHideMessage,
	})
	require.NoError(t, err)
	msg, err = mem.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(msg.Hidden)
}

func TestReviewBlockUser(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID: "msg-1",
		UserID:    "user-1",
		Text:      "attack",
	})
	require.NoError(t, err)

	_, err = eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusConfirmed,
		Action:     store.ModActionBlockUser,
		Notes:      "repeat offender",
	})
	require.NoError(t, err)

	susp, err := mem.ActiveSuspension(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(store.SuspensionTempBan, susp.Type)
	require.NotNil(t, susp.ExpiresAt)
	assert.WithinDuration(time.Now().Add(30*24*time.Hour), *susp.ExpiresAt, time.Minute)
	assert.False(susp.Restrictions.CanSendMessages)

	alerts, err := mem.ListAlerts(ctx, "", "", 10)
	require.NoError(t, err)
	if assert.Len(alerts, 1) {
		assert.Equal("user_suspended", alerts[0].Category)
		assert.Equal(store.AlertHigh, alerts[0].Severity)
		assert.Equal("user-1", alerts[0].UserID)
	}
}

func TestReviewEmergencyBlock(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID: "msg-1",
		UserID:    "user-1",
		Text:      "grooming",
	})
	require.NoError(t, err)

	_, err = eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusConfirmed,
		Action:     store.ModActionEmergencyBlock,
		Notes:      "child safety",
	})
	require.NoError(t, err)

	susp, err := mem.ActiveSuspension(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(store.SuspensionEmergencyBlock, susp.Type)
	assert.Nil(susp.ExpiresAt)
	assert.True(susp.EvidencePreserved)

	holds, err := mem.BlockingHolds(ctx)
	require.NoError(t, err)
	if assert.Len(holds, 1) {
		assert.Equal("emergency", holds[0].RetentionClass)
		assert.Equal([]string{"user-1"}, holds[0].UserIDs)
	}

	// the block itself alerts, alongside the submission's content alert
	alerts, err := mem.ListAlerts(ctx, "", "", 10)
	require.NoError(t, err)
	var suspAlert *store.SecurityAlert
	for i := range alerts {
		if alerts[i].Category == "user_suspended" {
			suspAlert = &alerts[i]
		}
	}
	if assert.NotNil(suspAlert) {
		assert.Equal(store.AlertCritical, suspAlert.Severity)
		assert.Equal("user-1", suspAlert.UserID)
	}
}

func TestReviewEscalatedStatus(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	// "attack" scores below the auto-escalation threshold
	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Text:           "attack",
	})
	require.NoError(t, err)
	require.False(t, flag.Escalated)

	reviewed, err := eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusEscalated,
		Notes:      "needs senior eyes",
	})
	require.NoError(t, err)

	// an escalated status always carries the full escalation marker
	assert.Equal(store.FlagStatusEscalated, reviewed.Status)
	assert.True(reviewed.Escalated)
	assert.Equal("admin", reviewed.EscalatedTo)
	assert.NotNil(reviewed.EscalatedAt)

	entries, err := mem.ListByTarget(ctx, "flag", flag.ID)
	require.NoError(t, err)
	escalations := 0
	for _, e := range entries {
		if e.Action == "flag_escalated" {
			escalations++
			assert.Equal("mod-1", e.ActorID)
		}
	}
	assert.Equal(1, escalations)

	// re-review keeps the original escalation fields
	again, err := eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-2",
		Status:     store.FlagStatusEscalated,
		EscalateTo: "legal",
	})
	require.NoError(t, err)
	assert.Equal("admin", again.EscalatedTo)
}

func TestReviewEscalatedStatusCustomTarget(t *testing.T) {
	assert := assert.New(t)
	eng, _ := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Text:           "attack",
	})
	require.NoError(t, err)

	reviewed, err := eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusEscalated,
		EscalateTo: "legal",
	})
	require.NoError(t, err)
	assert.True(reviewed.Escalated)
	assert.Equal("legal", reviewed.EscalatedTo)
}

func TestSuspensionQuota(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	for i := 0; i < QuotaSuspendDay; i++ {
		require.NoError(t, eng.Counters.Increment(ctx, "quota", "suspend"))
	}

	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID: "msg-1",
		UserID:    "user-1",
		Text:      "attack",
	})
	require.NoError(t, err)
	_, err = eng.ReviewFlag(ctx, flag.ID, ReviewRequest{
		ReviewedBy: "mod-1",
		Status:     store.FlagStatusConfirmed,
		Action:     store.ModActionBlockUser,
	})
	require.NoError(t, err)

	// circuit breaker tripped: no suspension, but the attempt is audited
	_, err = mem.ActiveSuspension(ctx, "user-1")
	assert.ErrorIs(err, store.ErrNotFound)

	entries, err := mem.ListByTarget(ctx, "user", "user-1")
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if e.Action == "user_suspended" && !e.Success && e.ErrorCode == "quota_exceeded" {
			found = true
		}
	}
	assert.True(found)
}

func TestActivityReport(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	flag, err := eng.SubmitActivityReport(ctx, ActivityReport{
		UserID:             "user-1",
		ActivityType:       "harassment_campaign",
		EvidenceMessageIDs: []string{"msg-1", "msg-2", "msg-3"},
		ReportedBy:         "mod-1",
	})
	require.NoError(t, err)

	// base 0.65 plus 0.1 per evidence message
	assert.InDelta(0.95, flag.RiskScore, 0.001)
	assert.Equal(store.SeverityCritical, flag.Severity)

	behavior, err := mem.GetBehavior(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(store.MonitoringIntensive, behavior.MonitoringLevel)
	assert.True(behavior.RequiresAction)

	alerts, err := mem.ListAlerts(ctx, "", "", 10)
	require.NoError(t, err)
	if assert.Len(alerts, 1) {
		assert.Equal("high_risk_behavior", alerts[0].Category)
		assert.Equal(store.AlertCritical, alerts[0].Severity)
	}
}

func TestAlertLifecycle(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	_, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID: "msg-1",
		UserID:    "user-1",
		Text:      "grooming",
	})
	require.NoError(t, err)
	alerts, err := mem.ListAlerts(ctx, "", "", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	ack, err := eng.AcknowledgeAlert(ctx, alerts[0].ID, "mod-1")
	require.NoError(t, err)
	assert.Equal(store.AlertStatusInvestigating, ack.Status)
	assert.Equal("mod-1", ack.AcknowledgedBy)

	resolved, err := eng.ResolveAlert(ctx, alerts[0].ID, "mod-1", false)
	require.NoError(t, err)
	assert.Equal(store.AlertStatusResolved, resolved.Status)

	// a resolved alert never reopens
	_, err = eng.AcknowledgeAlert(ctx, alerts[0].ID, "mod-2")
	var ve *ValidationError
	assert.ErrorAs(err, &ve)
}

// flakyAnalyzer fails with ErrUnavailable for a fixed span of calls, then
// recovers. Exercises the resumable-scan path.
type flakyAnalyzer struct {
	inner     analysis.Analyzer
	calls     int
	failAfter int
	failCount int
}

func (f *flakyAnalyzer) Analyze(ctx context.Context, content analysis.Content, analysisType string) (*analysis.Assessment, error) {
	f.calls++
	if f.calls > f.failAfter && f.failCount > 0 {
		f.failCount--
		return nil, analysis.ErrUnavailable
	}
	return f.inner.Analyze(ctx, content, analysisType)
}

func seedScanMessages(t *testing.T, mem *store.MemStore, risky, clean int) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	n := 0
	for i := 0; i < risky; i++ {
		n++
		require.NoError(t, mem.UpsertMessage(ctx, &store.Message{
			ID:             fmt.Sprintf("msg-%02d", n),
			ConversationID: "conv-1",
			SenderID:       "user-1",
			Content:        "lets exploit this",
			CreatedAt:      base.Add(time.Duration(n) * time.Minute),
		}))
	}
	for i := 0; i < clean; i++ {
		n++
		require.NoError(t, mem.UpsertMessage(ctx, &store.Message{
			ID:             fmt.Sprintf("msg-%02d", n),
			ConversationID: "conv-1",
			SenderID:       "user-2",
			Content:        "nothing to see here",
			CreatedAt:      base.Add(time.Duration(n) * time.Minute),
		}))
	}
}

func TestScanConversation(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()
	seedScanMessages(t, mem, 6, 2)

	scan, err := eng.ScanConversation(ctx, ScanRequest{ConversationID: "conv-1", LookbackDays: 7})
	require.NoError(t, err)

	assert.Equal(store.ScanCompleted, scan.Status)
	assert.Equal(8, scan.MessagesScanned)
	assert.Equal(6, scan.MessagesFlagged)
	assert.InDelta(6*0.85, scan.TotalRisk, 0.001)

	flags, err := mem.ListContentFlags(ctx, store.FlagQuery{ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Len(flags, 6)
	for _, f := range flags {
		require.NotNil(t, f.ScanID)
		assert.Equal(scan.ID, *f.ScanID)
	}

	// 6 flagged with total risk above 5: coordination alert at high severity
	alerts, err := mem.ListAlerts(ctx, "", store.AlertHigh, 10)
	require.NoError(t, err)
	found := false
	for _, a := range alerts {
		if a.Category == "coordinated_threats" {
			found = true
		}
	}
	assert.True(found)

	// tripped conversations land in the distinct day counter once
	n, err := eng.Counters.GetCountDistinct(ctx, "coordinated", "conversation", countstore.PeriodDay)
	require.NoError(t, err)
	assert.Equal(1, n)
}

func TestScanResumesAfterOutage(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()
	seedScanMessages(t, mem, 6, 2)

	flaky := &flakyAnalyzer{
		inner:     analysis.NewKeywordAnalyzer(nil),
		failAfter: 3,
		failCount: 1,
	}
	eng.Analyzer = flaky
	eng.Cache = nil

	scan, err := eng.ScanConversation(ctx, ScanRequest{ConversationID: "conv-1", LookbackDays: 7})
	assert.ErrorIs(err, analysis.ErrUnavailable)
	require.NotNil(t, scan)
	assert.Equal(store.ScanRunning, scan.Status)
	assert.Equal("msg-03", scan.Cursor)

	resumed, err := eng.ScanConversation(ctx, ScanRequest{
		ConversationID: "conv-1",
		ResumeScanID:   scan.ID,
	})
	require.NoError(t, err)
	assert.Equal(store.ScanCompleted, resumed.Status)
	assert.Equal(8, resumed.MessagesScanned)
	assert.Equal(6, resumed.MessagesFlagged)

	// no message flagged twice across the interruption
	flags, err := mem.ListContentFlags(ctx, store.FlagQuery{ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Len(flags, 6)
}

func TestCaseQuota(t *testing.T) {
	assert := assert.New(t)
	eng, mem := EngineTestFixture()
	ctx := context.Background()

	for i := 0; i < QuotaCaseDay; i++ {
		require.NoError(t, eng.Counters.Increment(ctx, "quota", "case"))
	}
	flag, err := eng.SubmitContent(ctx, ContentSubmission{
		MessageID: "msg-1",
		UserID:    "user-1",
		Text:      "grooming",
	})
	require.NoError(t, err)

	_, err = eng.ReportToAuthorities(ctx, flag.ID, "ncmec", "high", "mod-1")
	assert.Error(err)

	cases, err := mem.ListByTarget(ctx, "flag", flag.ID)
	require.NoError(t, err)
	found := false
	for _, e := range cases {
		if e.Action == "case_filed" && e.ErrorCode == "quota_exceeded" {
			found = true
		}
	}
	assert.True(found)
}

func TestQuotaIsDailyNotPeriodTotal(t *testing.T) {
	assert := assert.New(t)
	eng, _ := EngineTestFixture()
	ctx := context.Background()

	over, err := eng.overQuota(ctx, "suspend", QuotaSuspendDay)
	require.NoError(t, err)
	assert.False(over)

	require.NoError(t, eng.Counters.Increment(ctx, "quota", "suspend"))
	n, err := eng.Counters.GetCount(ctx, "quota", "suspend", countstore.PeriodDay)
	require.NoError(t, err)
	assert.Equal(1, n)
}
