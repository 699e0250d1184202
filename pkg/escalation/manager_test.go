package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapleaiorg/substrate/pkg/contracts"
)

func newTestManager() (*Manager, *time.Time) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m := NewManager()
	m.WithClock(func() time.Time { return now })
	return m, &now
}

func sampleEffect() contracts.HeldEffect {
	return contracts.HeldEffect{
		EffectDomain: "finance",
		Targets:      []string{"acct-42"},
		Description:  "transfer 1200 units to acct-42",
	}
}

func TestCreateIntentAppliesDefaults(t *testing.T) {
	m, _ := newTestManager()

	intent, err := m.CreateIntent(context.Background(), "cmt-1", "critical risk", "CRITICAL", sampleEffect(), contracts.ApprovalSpec{})
	require.NoError(t, err)

	assert.Equal(t, contracts.EscalationStatusPending, intent.Status)
	assert.Equal(t, []string{"operator"}, intent.Approval.ApproverRoles)
	assert.Equal(t, 1, intent.Approval.Quorum)
	assert.Equal(t, "deny", intent.Approval.OnTimeout)
	assert.Equal(t, intent.CreatedAt.Add(300*time.Second), intent.ExpiresAt)
	assert.Equal(t, 1, m.PendingCount())
}

func TestCreateIntentRequiresCommitment(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.CreateIntent(context.Background(), "", "r", "HIGH", sampleEffect(), contracts.ApprovalSpec{})
	assert.Error(t, err)
}

func TestApproveProducesReceipt(t *testing.T) {
	m, now := newTestManager()
	intent, err := m.CreateIntent(context.Background(), "cmt-1", "r", "HIGH", sampleEffect(), contracts.ApprovalSpec{})
	require.NoError(t, err)

	*now = now.Add(30 * time.Second)
	receipt, err := m.Approve(context.Background(), intent.IntentID, "operator-7")
	require.NoError(t, err)

	assert.Equal(t, contracts.EscalationStatusApproved, receipt.Outcome)
	assert.Equal(t, []string{"operator-7"}, receipt.ApprovedBy)
	assert.Equal(t, int64(30_000), receipt.DurationMs)
	assert.NotEmpty(t, receipt.ContentHash)
	assert.Equal(t, 0, m.PendingCount())

	// An already-resolved intent cannot be re-decided.
	_, err = m.Deny(context.Background(), intent.IntentID, "operator-8", "late")
	assert.Error(t, err)
}

func TestDenyRecordsReason(t *testing.T) {
	m, _ := newTestManager()
	intent, err := m.CreateIntent(context.Background(), "cmt-1", "r", "HIGH", sampleEffect(), contracts.ApprovalSpec{})
	require.NoError(t, err)

	receipt, err := m.Deny(context.Background(), intent.IntentID, "operator-2", "blast radius too wide")
	require.NoError(t, err)
	assert.Equal(t, contracts.EscalationStatusDenied, receipt.Outcome)
	assert.Equal(t, "operator-2", receipt.DeniedBy)
	assert.Equal(t, "blast radius too wide", receipt.DenyReason)
}

func TestApproveAfterExpiryTimesOut(t *testing.T) {
	m, now := newTestManager()
	intent, err := m.CreateIntent(context.Background(), "cmt-1", "r", "HIGH", sampleEffect(), contracts.ApprovalSpec{TimeoutSeconds: 60})
	require.NoError(t, err)

	*now = now.Add(2 * time.Minute)
	receipt, err := m.Approve(context.Background(), intent.IntentID, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.EscalationStatusTimedOut, receipt.Outcome)
	assert.Empty(t, receipt.ApprovedBy)
}

func TestCheckTimeouts(t *testing.T) {
	m, now := newTestManager()
	_, err := m.CreateIntent(context.Background(), "cmt-1", "r", "HIGH", sampleEffect(), contracts.ApprovalSpec{TimeoutSeconds: 60})
	require.NoError(t, err)
	_, err = m.CreateIntent(context.Background(), "cmt-2", "r", "HIGH", sampleEffect(), contracts.ApprovalSpec{TimeoutSeconds: 3600})
	require.NoError(t, err)

	*now = now.Add(10 * time.Minute)
	receipts, err := m.CheckTimeouts(context.Background())
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, contracts.EscalationStatusTimedOut, receipts[0].Outcome)
	assert.Equal(t, 1, m.PendingCount())
}

func TestForCommitment(t *testing.T) {
	m, now := newTestManager()
	_, err := m.CreateIntent(context.Background(), "cmt-1", "first", "HIGH", sampleEffect(), contracts.ApprovalSpec{})
	require.NoError(t, err)
	*now = now.Add(time.Minute)
	second, err := m.CreateIntent(context.Background(), "cmt-1", "second", "HIGH", sampleEffect(), contracts.ApprovalSpec{})
	require.NoError(t, err)

	got, ok := m.ForCommitment("cmt-1")
	require.True(t, ok)
	assert.Equal(t, second.IntentID, got.IntentID)

	_, ok = m.ForCommitment("cmt-none")
	assert.False(t, ok)
}
