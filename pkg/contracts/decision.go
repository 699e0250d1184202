// Package contracts defines the signed wire-level records exchanged across
// the substrate's trust boundaries: decision records binding a commitment
// to the card that adjudicated it, escalation intents and receipts for
// human judgment, and consequence/evidence records closing the loop from
// execution back to observation.
package contracts

import "time"

// DecisionRecord is the signed, externally presentable form of a decision
// card: it binds a commitment id to the decision that adjudicated it, so a
// downstream consumer can verify the gate's judgment without access to the
// ledger.
type DecisionRecord struct {
	DecisionID    string    `json:"decision_id"`
	CommitmentID  string    `json:"commitment_id"`
	Decision      string    `json:"decision"`
	Rationale     string    `json:"rationale"`
	RiskLevel     string    `json:"risk_level"`
	PolicyRefs    []string  `json:"policy_refs,omitempty"`
	PolicyVersion string    `json:"policy_version"`
	DecidedAt     time.Time `json:"decided_at"`
	Signer        string    `json:"signer,omitempty"`
	SignatureType string    `json:"signature_type,omitempty"`
	Signature     string    `json:"signature,omitempty"`
}
