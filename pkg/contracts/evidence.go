package contracts

import (
	"encoding/json"
	"time"
)

// EvidenceKind classifies what a piece of evidence attests to.
type EvidenceKind string

const (
	// EvidenceKindConsequence is observational evidence derived from an
	// executed commitment's consequence.
	EvidenceKindConsequence EvidenceKind = "consequence"
	// EvidenceKindExternal is evidence supplied from outside the substrate.
	EvidenceKindExternal EvidenceKind = "external"
)

// Evidence is a Meaning-level observational record: what the system has
// seen happen, available to downstream meaning formation. It is never an
// authorization for anything — evidence informs, commitments authorize.
type Evidence struct {
	EvidenceID      string          `json:"evidence_id"`
	Kind            EvidenceKind    `json:"kind"`
	SourceReceiptID string          `json:"source_receipt_id,omitempty"`
	CommitmentID    string          `json:"commitment_id,omitempty"`
	WorldLine       string          `json:"worldline,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ContentHash     string          `json:"content_hash"`
	IngestedAt      time.Time       `json:"ingested_at"`
}
