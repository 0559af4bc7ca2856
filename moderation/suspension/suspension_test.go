package suspension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-msg/sentinel/moderation/store"
)

func testManager() (*Manager, *store.MemStore) {
	mem := store.NewMemStore()
	return NewManager(nil, mem, mem), mem
}

func TestApplyReplacesActive(t *testing.T) {
	assert := assert.New(t)
	m, mem := testManager()
	ctx := context.Background()

	d := 24 * time.Hour
	first, err := m.Apply(ctx, Request{
		UserID:    "user-1",
		Type:      store.SuspensionTempRestrict,
		Severity:  store.SuspensionSevMinor,
		Reason:    "spam",
		Duration:  &d,
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)

	second, err := m.Apply(ctx, Request{
		UserID:    "user-1",
		Type:      store.SuspensionTempBan,
		Severity:  store.SuspensionSevMajor,
		Reason:    "kept at it",
		Duration:  &d,
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)

	// most recent wins; the prior row is deactivated, not deleted
	active, err := mem.ActiveSuspension(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(second.ID, active.ID)

	prior, err := mem.GetSuspension(ctx, first.ID)
	require.NoError(t, err)
	assert.False(prior.IsActive)

	// audit history keeps both
	entries, err := mem.ListByTarget(ctx, "suspension", first.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(actions, "suspension_applied")
	assert.Contains(actions, "suspension_replaced")
}

func TestPermanentNilExpiry(t *testing.T) {
	assert := assert.New(t)
	m, _ := testManager()
	ctx := context.Background()

	susp, err := m.Apply(ctx, Request{
		UserID:    "user-1",
		Type:      store.SuspensionPermanentBan,
		Severity:  store.SuspensionSevCritical,
		Reason:    "severe abuse",
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)
	assert.Nil(susp.ExpiresAt)

	_, restricted, err := m.Check(ctx, "user-1")
	require.NoError(t, err)
	assert.True(restricted)
}

func TestCheckTreatsExpiredAsUnrestricted(t *testing.T) {
	assert := assert.New(t)
	m, mem := testManager()
	ctx := context.Background()

	d := time.Minute
	susp, err := m.Apply(ctx, Request{
		UserID:    "user-1",
		Type:      store.SuspensionTempBan,
		Severity:  store.SuspensionSevMajor,
		Reason:    "temp",
		Duration:  &d,
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)

	// force the expiry into the past without running the sweep
	past := time.Now().Add(-time.Hour)
	susp.ExpiresAt = &past
	require.NoError(t, mem.UpdateSuspension(ctx, susp))

	got, restricted, err := m.Check(ctx, "user-1")
	require.NoError(t, err)
	assert.False(restricted)
	// Check does not mutate; the row stays active until the sweep
	assert.True(got.IsActive)
}

func TestSweepExpired(t *testing.T) {
	assert := assert.New(t)
	m, mem := testManager()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	d := time.Minute
	expired, err := m.Apply(ctx, Request{
		UserID:    "user-1",
		Type:      store.SuspensionTempBan,
		Severity:  store.SuspensionSevMajor,
		Reason:    "temp",
		Duration:  &d,
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)
	expired.ExpiresAt = &past
	require.NoError(t, mem.UpdateSuspension(ctx, expired))

	_, err = m.Apply(ctx, Request{
		UserID:    "user-2",
		Type:      store.SuspensionPermanentBan,
		Severity:  store.SuspensionSevCritical,
		Reason:    "permanent",
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)

	n, err := m.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(1, n)

	row, err := mem.GetSuspension(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(row.IsActive)

	// permanent suspensions are never swept
	_, restricted, err := m.Check(ctx, "user-2")
	require.NoError(t, err)
	assert.True(restricted)

	// the sweep is audited as a system transition
	entries, err := mem.ListByTarget(ctx, "suspension", expired.ID)
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if e.Action == "suspension_expired" && e.ActorID == "system" {
			found = true
		}
	}
	assert.True(found)
}

func TestLiftEmergencyBlockAuthz(t *testing.T) {
	assert := assert.New(t)
	m, mem := testManager()
	ctx := context.Background()

	_, err := m.Apply(ctx, Request{
		UserID:    "user-1",
		Type:      store.SuspensionEmergencyBlock,
		Severity:  store.SuspensionSevCritical,
		Reason:    "child safety",
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)

	// another moderator without override authority is refused
	_, err = m.Lift(ctx, "user-1", "mod-2", false)
	assert.ErrorIs(err, ErrNotAuthorized)

	_, restricted, err := m.Check(ctx, "user-1")
	require.NoError(t, err)
	assert.True(restricted)

	// the refused attempt is itself audited
	susp, err := mem.ActiveSuspension(ctx, "user-1")
	require.NoError(t, err)
	entries, err := mem.ListByTarget(ctx, "suspension", susp.ID)
	require.NoError(t, err)
	denied := false
	for _, e := range entries {
		if !e.Success && e.ErrorCode == "policy_violation" {
			denied = true
		}
	}
	assert.True(denied)

	// override authority succeeds
	lifted, err := m.Lift(ctx, "user-1", "mod-2", true)
	require.NoError(t, err)
	assert.False(lifted.IsActive)

	// creator can always lift their own block
	_, err = m.Apply(ctx, Request{
		UserID:    "user-1",
		Type:      store.SuspensionEmergencyBlock,
		Severity:  store.SuspensionSevCritical,
		Reason:    "again",
		CreatedBy: "mod-1",
	})
	require.NoError(t, err)
	_, err = m.Lift(ctx, "user-1", "mod-1", false)
	assert.NoError(err)
}

func TestRequestValidation(t *testing.T) {
	assert := assert.New(t)
	m, _ := testManager()
	ctx := context.Background()

	var ve *ValidationError
	_, err := m.Apply(ctx, Request{Type: store.SuspensionWarning, Severity: store.SuspensionSevWarning})
	assert.ErrorAs(err, &ve)

	_, err = m.Apply(ctx, Request{UserID: "user-1", Type: "bogus", Severity: store.SuspensionSevWarning})
	assert.ErrorAs(err, &ve)

	_, err = m.Apply(ctx, Request{UserID: "user-1", Type: store.SuspensionWarning, Severity: "bogus"})
	assert.ErrorAs(err, &ve)
}
