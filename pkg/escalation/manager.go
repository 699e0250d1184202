// Package escalation implements the human-judgment surface behind the
// gate's AwaitingHuman suspensions: it turns a held commitment into a
// structured EscalationIntent an approver can reason about, tracks its
// lifecycle, enforces timeouts, and mints an immutable EscalationReceipt
// for every outcome.
package escalation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mapleaiorg/substrate/pkg/contracts"
	"github.com/mapleaiorg/substrate/pkg/escalation/ceremony"
	"github.com/mapleaiorg/substrate/pkg/ledger"
)

// DefaultApproval is the approval spec used when the caller supplies none:
// one operator, five-minute window, timeout denies.
func DefaultApproval() contracts.ApprovalSpec {
	return contracts.ApprovalSpec{
		ApproverRoles:  []string{"operator"},
		Quorum:         1,
		TimeoutSeconds: 300,
		OnTimeout:      "deny",
	}
}

// Manager handles the lifecycle of escalation intents.
type Manager struct {
	mu      sync.Mutex
	intents map[string]*contracts.EscalationIntent
	journal *ledger.Journal
	clock   func() time.Time
}

// NewManager creates a new escalation manager.
func NewManager() *Manager {
	return &Manager{
		intents: make(map[string]*contracts.EscalationIntent),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// WithJournal chains every escalation outcome into the given journal, so
// the escalation stream is independently verifiable.
func (m *Manager) WithJournal(j *ledger.Journal) *Manager {
	m.journal = j
	return m
}

// CreateIntent opens a new escalation for a commitment the gate suspended
// for human review. approval may be zero-valued, in which case the default
// spec applies.
func (m *Manager) CreateIntent(
	ctx context.Context,
	commitmentID, rationale, riskClass string,
	heldEffect contracts.HeldEffect,
	approval contracts.ApprovalSpec,
) (*contracts.EscalationIntent, error) {
	_ = ctx
	if commitmentID == "" {
		return nil, fmt.Errorf("escalation: commitment id is required")
	}
	now := m.clock()

	defaults := DefaultApproval()
	if len(approval.ApproverRoles) == 0 {
		approval.ApproverRoles = defaults.ApproverRoles
	}
	if approval.Quorum <= 0 {
		approval.Quorum = defaults.Quorum
	}
	if approval.TimeoutSeconds <= 0 {
		approval.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if approval.OnTimeout == "" {
		approval.OnTimeout = defaults.OnTimeout
	}

	intent := &contracts.EscalationIntent{
		IntentID:     uuid.New().String(),
		CommitmentID: commitmentID,
		Rationale:    rationale,
		RiskClass:    riskClass,
		HeldEffect:   heldEffect,
		Approval:     approval,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(approval.TimeoutSeconds) * time.Second),
		Status:       contracts.EscalationStatusPending,
	}

	m.mu.Lock()
	m.intents[intent.IntentID] = intent
	m.mu.Unlock()

	return intent, nil
}

// Approve approves an escalation intent.
func (m *Manager) Approve(ctx context.Context, intentID string, approverID string) (*contracts.EscalationReceipt, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("escalation intent %q not found", intentID)
	}

	if intent.Status != contracts.EscalationStatusPending {
		return nil, fmt.Errorf("escalation intent %q is not PENDING (status=%s)", intentID, intent.Status)
	}

	now := m.clock()
	if now.After(intent.ExpiresAt) {
		intent.Status = contracts.EscalationStatusTimedOut
		return m.createReceipt(intent, now), nil
	}

	intent.Status = contracts.EscalationStatusApproved
	receipt := m.createReceipt(intent, now)
	receipt.ApprovedBy = []string{approverID}

	return receipt, nil
}

// ApproveWithCeremony approves an intent only after the approval ceremony
// validates: timelock and hold-time minimums met, challenge answered when
// the policy requires one. Used for Critical-risk commitments where a
// reflex click must not count as judgment.
func (m *Manager) ApproveWithCeremony(ctx context.Context, intentID, approverID string, policy ceremony.CeremonyPolicy, req ceremony.CeremonyRequest) (*contracts.EscalationReceipt, error) {
	if result := ceremony.ValidateCeremony(policy, req); !result.Valid {
		return nil, fmt.Errorf("escalation: ceremony rejected: %s", result.Reason)
	}
	if req.CommitmentID != "" {
		if intent, err := m.GetIntent(intentID); err == nil && intent.CommitmentID != req.CommitmentID {
			return nil, fmt.Errorf("escalation: ceremony bound to %s, intent is for %s", req.CommitmentID, intent.CommitmentID)
		}
	}
	return m.Approve(ctx, intentID, approverID)
}

// Deny denies an escalation intent.
func (m *Manager) Deny(ctx context.Context, intentID, denierID, reason string) (*contracts.EscalationReceipt, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("escalation intent %q not found", intentID)
	}

	if intent.Status != contracts.EscalationStatusPending {
		return nil, fmt.Errorf("escalation intent %q is not PENDING (status=%s)", intentID, intent.Status)
	}

	intent.Status = contracts.EscalationStatusDenied
	receipt := m.createReceipt(intent, m.clock())
	receipt.DeniedBy = denierID
	receipt.DenyReason = reason

	return receipt, nil
}

// CheckTimeouts scans pending intents and handles any that have expired.
// Returns receipts for any timed-out intents.
func (m *Manager) CheckTimeouts(ctx context.Context) ([]*contracts.EscalationReceipt, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	var receipts []*contracts.EscalationReceipt

	for _, intent := range m.intents {
		if intent.Status != contracts.EscalationStatusPending {
			continue
		}
		if now.After(intent.ExpiresAt) {
			intent.Status = contracts.EscalationStatusTimedOut
			receipts = append(receipts, m.createReceipt(intent, now))
		}
	}

	return receipts, nil
}

// GetIntent returns an escalation intent by ID.
func (m *Manager) GetIntent(intentID string) (*contracts.EscalationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("escalation intent %q not found", intentID)
	}
	return intent, nil
}

// ForCommitment returns the most recent intent for a commitment, if any.
func (m *Manager) ForCommitment(commitmentID string) (*contracts.EscalationIntent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *contracts.EscalationIntent
	for _, intent := range m.intents {
		if intent.CommitmentID != commitmentID {
			continue
		}
		if latest == nil || intent.CreatedAt.After(latest.CreatedAt) {
			latest = intent
		}
	}
	return latest, latest != nil
}

// PendingCount returns the number of pending escalations.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, intent := range m.intents {
		if intent.Status == contracts.EscalationStatusPending {
			count++
		}
	}
	return count
}

func (m *Manager) createReceipt(intent *contracts.EscalationIntent, resolvedAt time.Time) *contracts.EscalationReceipt {
	durationMs := resolvedAt.Sub(intent.CreatedAt).Milliseconds()

	receipt := &contracts.EscalationReceipt{
		ReceiptID:  uuid.New().String(),
		IntentID:   intent.IntentID,
		Outcome:    intent.Status,
		ResolvedAt: resolvedAt,
		DurationMs: durationMs,
	}

	hashable := struct {
		IntentID     string                     `json:"intent_id"`
		CommitmentID string                     `json:"commitment_id"`
		Outcome      contracts.EscalationStatus `json:"outcome"`
	}{
		IntentID:     intent.IntentID,
		CommitmentID: intent.CommitmentID,
		Outcome:      intent.Status,
	}
	data, _ := json.Marshal(hashable)
	h := sha256.Sum256(data)
	receipt.ContentHash = "sha256:" + hex.EncodeToString(h[:])

	if m.journal != nil {
		_, _ = m.journal.Append("escalation_resolved", "escalation", map[string]interface{}{
			"receipt_id":    receipt.ReceiptID,
			"intent_id":     receipt.IntentID,
			"commitment_id": intent.CommitmentID,
			"outcome":       string(receipt.Outcome),
			"content_hash":  receipt.ContentHash,
		})
	}

	return receipt
}
