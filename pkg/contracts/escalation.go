package contracts

import "time"

// EscalationIntent is a formal request for human judgment over a suspended
// commitment. It carries the context an approver needs to decide: what the
// commitment would do, why the gate held it, and under what rules the
// approval is collected.
type EscalationIntent struct {
	IntentID     string `json:"intent_id"`
	CommitmentID string `json:"commitment_id"`

	// Why the gate held the commitment.
	Rationale string `json:"rationale"`
	RiskClass string `json:"risk_class"`

	// The effect being held for judgment.
	HeldEffect HeldEffect `json:"held_effect"`

	// Approval requirements.
	Approval ApprovalSpec `json:"approval"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Status EscalationStatus `json:"status"`
}

// HeldEffect describes the suspended effect in approver terms.
type HeldEffect struct {
	EffectDomain string   `json:"effect_domain"`
	Targets      []string `json:"targets,omitempty"`
	Description  string   `json:"description"`
}

// ApprovalSpec defines who can approve and how.
type ApprovalSpec struct {
	ApproverRoles  []string `json:"approver_roles"`
	Quorum         int      `json:"quorum"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	// OnTimeout is always a denial in this substrate; the field records the
	// policy explicitly so receipts are self-describing.
	OnTimeout string `json:"on_timeout"`
}

// EscalationStatus tracks the lifecycle of an escalation.
type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "PENDING"
	EscalationStatusApproved EscalationStatus = "APPROVED"
	EscalationStatusDenied   EscalationStatus = "DENIED"
	EscalationStatusTimedOut EscalationStatus = "TIMED_OUT"
)

// EscalationReceipt is the immutable record of an escalation outcome.
// Every escalation produces one, regardless of how it resolved.
type EscalationReceipt struct {
	ReceiptID   string           `json:"receipt_id"`
	IntentID    string           `json:"intent_id"`
	Outcome     EscalationStatus `json:"outcome"`
	ApprovedBy  []string         `json:"approved_by,omitempty"`
	DeniedBy    string           `json:"denied_by,omitempty"`
	DenyReason  string           `json:"deny_reason,omitempty"`
	ResolvedAt  time.Time        `json:"resolved_at"`
	DurationMs  int64            `json:"duration_ms"`
	ContentHash string           `json:"content_hash"`
}
