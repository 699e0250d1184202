package executor

import (
	"context"
	"time"
)

// ExecutionPayload is whatever a concrete EffectExecutor produces when it
// carries out an approved commitment. Summary and TestsPassed feed directly
// into the minted Receipt; Detail is opaque and never hashed.
type ExecutionPayload struct {
	Summary     string
	TestsPassed uint64
	Detail      map[string]any
}

// EffectExecutor is the pluggable low-level driver that actually performs
// the effect a commitment authorizes. It never touches ledger state —
// CommitmentExecutor owns the Approved -> Executing -> Executed/Failed
// transitions around the call.
type EffectExecutor interface {
	Execute(ctx context.Context, commitmentID string, declaration any) (ExecutionPayload, error)
}

// GovernanceTier classifies how much human oversight produced a receipt,
// per the supplemented governance-tiering feature.
type GovernanceTier string

const (
	TierAutonomous GovernanceTier = "TIER_0_AUTONOMOUS"
	TierSupervised GovernanceTier = "TIER_1_SUPERVISED"
	TierManual     GovernanceTier = "TIER_2_MANUAL"
)

// Receipt is the bit-exact, cryptographically hashed record of an executed
// commitment. ExecutionHash is computed over every other field with
// ExecutionHash itself blanked, via canonical JSON — so two receipts are
// byte-for-byte comparable the moment their content matches.
type Receipt struct {
	ReceiptID      string         `json:"receipt_id"`
	CommitmentID   string         `json:"commitment_id"`
	ConsequenceID  string         `json:"consequence_id"`
	IssuedAt       time.Time      `json:"issued_at"`
	Summary        string         `json:"summary"`
	TestsPassed    uint64         `json:"tests_passed"`
	GovernanceTier GovernanceTier `json:"governance_tier"`
	ExecutionHash  string         `json:"execution_hash"`
}

// ReceiptStore persists minted receipts. Implementations must be
// append-only: Store must reject overwriting an existing ReceiptID.
type ReceiptStore interface {
	Store(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, receiptID string) (*Receipt, error)
	GetForCommitment(ctx context.Context, commitmentID string) (*Receipt, error)
}
