// Package governance implements the gate's Policy Evaluation and Risk
// Assessment stages: a CEL-based Policy Provider producing Policy Decision
// Cards, and an aggregate risk accounting ledger bounding per-action and
// windowed risk exposure.
package governance

import "time"

// Decision is the closed set of outcomes a Policy Provider may return.
type Decision string

const (
	DecisionApprove            Decision = "APPROVE"
	DecisionDeny               Decision = "DENY"
	DecisionRequireCoSignature Decision = "REQUIRE_CO_SIGNATURE"
	DecisionRequireHumanReview Decision = "REQUIRE_HUMAN_REVIEW"
)

// PolicyDecisionCard is the immutable output of policy evaluation. Once
// attached to a commitment in the ledger it never changes; a re-evaluation
// produces a new card, never an edit of this one.
type PolicyDecisionCard struct {
	Decision   Decision  `json:"decision"`
	Rationale  string    `json:"rationale"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Conditions []string  `json:"conditions,omitempty"`
	PolicyRefs []string  `json:"policy_refs"`
	DecidedAt  time.Time `json:"decided_at"`
	Version    string    `json:"version"`
}
