package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	assert := assert.New(t)

	assert.True(SeverityCritical.Rank() > SeverityHigh.Rank())
	assert.True(SeverityHigh.Rank() > SeverityMedium.Rank())
	assert.True(SeverityMedium.Rank() > SeverityLow.Rank())
	assert.Equal(0, Severity("bogus").Rank())
}

func TestSuspensionExpiry(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := &Suspension{IsActive: true, ExpiresAt: &past}
	assert.True(expired.ExpiredAt(now))
	assert.False(expired.InEffect(now))

	current := &Suspension{IsActive: true, ExpiresAt: &future}
	assert.False(current.ExpiredAt(now))
	assert.True(current.InEffect(now))

	permanent := &Suspension{IsActive: true}
	assert.False(permanent.ExpiredAt(now))
	assert.True(permanent.InEffect(now))

	lifted := &Suspension{IsActive: false, ExpiresAt: &future}
	assert.False(lifted.ExpiredAt(now))
	assert.False(lifted.InEffect(now))
}

func TestAlertStatusTerminal(t *testing.T) {
	assert := assert.New(t)

	assert.True(AlertStatusResolved.Terminal())
	assert.True(AlertStatusDismissed.Terminal())
	assert.False(AlertStatusActive.Terminal())
	assert.False(AlertStatusInvestigating.Terminal())
	assert.False(AlertStatusEscalated.Terminal())
}

func TestCaseStatusTransitions(t *testing.T) {
	assert := assert.New(t)

	// forward moves, including skips
	assert.True(CaseDraft.CanTransition(CaseSubmitted))
	assert.True(CaseSubmitted.CanTransition(CaseAcknowledged))
	assert.True(CaseSubmitted.CanTransition(CaseInvestigating))
	assert.True(CaseAcknowledged.CanTransition(CaseClosed))
	assert.True(CaseInfoRequested.CanTransition(CaseClosed))

	// no backward moves, no self moves
	assert.False(CaseInvestigating.CanTransition(CaseSubmitted))
	assert.False(CaseAcknowledged.CanTransition(CaseAcknowledged))
	assert.False(CaseInfoRequested.CanTransition(CaseDraft))

	// failed and rejected reachable from any pre-closed state
	for _, from := range []CaseStatus{CaseDraft, CaseSubmitted, CaseAcknowledged, CaseInvestigating, CaseInfoRequested} {
		assert.True(from.CanTransition(CaseFailed), string(from))
		assert.True(from.CanTransition(CaseRejected), string(from))
	}

	// terminal states go nowhere
	for _, from := range []CaseStatus{CaseClosed, CaseFailed, CaseRejected} {
		for _, to := range []CaseStatus{CaseDraft, CaseSubmitted, CaseInvestigating, CaseClosed, CaseFailed, CaseRejected} {
			assert.False(from.CanTransition(to), "%s -> %s", from, to)
		}
	}

	assert.False(CaseDraft.CanTransition(CaseStatus("bogus")))
}

func TestHoldStatusBlocks(t *testing.T) {
	assert := assert.New(t)

	assert.True(HoldActive.Blocks())
	assert.True(HoldExtended.Blocks())
	assert.False(HoldReleased.Blocks())
	assert.False(HoldExpired.Blocks())
}

func TestHoldCovers(t *testing.T) {
	assert := assert.New(t)

	msg := &Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "alice",
		CreatedAt:      time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	assert.True((&EvidenceHold{MessageIDs: []string{"msg-1"}}).Covers(msg))
	assert.True((&EvidenceHold{ConversationIDs: []string{"conv-1"}}).Covers(msg))
	assert.True((&EvidenceHold{UserIDs: []string{"alice"}}).Covers(msg))
	assert.False((&EvidenceHold{MessageIDs: []string{"msg-2"}, UserIDs: []string{"bob"}}).Covers(msg))

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	assert.True((&EvidenceHold{RangeFrom: &from, RangeTo: &to}).Covers(msg))

	before := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.False((&EvidenceHold{RangeFrom: &before, RangeTo: &from}).Covers(msg))

	// open-ended ranges do not match; both bounds are required
	assert.False((&EvidenceHold{RangeFrom: &from}).Covers(msg))
}
