// Package gate implements the seven-stage Commitment Gate pipeline:
// every commitment declaration is adjudicated through Declaration, Identity
// Binding, Capability Check, Policy Evaluation, Risk Assessment,
// Co-signature Collection, and Final Decision, in that fixed order. Any
// stage error or panic denies the commitment — the pipeline never fails
// open.
package gate

import (
	"context"
	"fmt"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// Name is the canonical identifier of one of the seven pipeline stages.
type Name string

// The seven stages, in their required canonical order. A Pipeline that
// isn't built from exactly this sequence refuses to construct.
const (
	StageDeclaration     Name = "declaration"
	StageIdentityBinding Name = "identity_binding"
	StageCapabilityCheck Name = "capability_check"
	StagePolicyEval      Name = "policy_evaluation"
	StageRiskAssessment  Name = "risk_assessment"
	StageCoSignature     Name = "co_signature_collection"
	StageFinalDecision   Name = "final_decision"
)

// CanonicalOrder is the required stage sequence for any Pipeline.
var CanonicalOrder = []Name{
	StageDeclaration,
	StageIdentityBinding,
	StageCapabilityCheck,
	StagePolicyEval,
	StageRiskAssessment,
	StageCoSignature,
	StageFinalDecision,
}

// Verdict is a stage's contribution to the pipeline's running outcome.
// Stages never downgrade a more restrictive verdict already set by an
// earlier stage (the upgrade-never-downgrade rule): Pass only carries the
// pipeline forward if nothing before it has already suspended or denied.
type Verdict string

const (
	VerdictPass               Verdict = "PASS"
	VerdictDeny               Verdict = "DENY"
	VerdictRequireCoSignature Verdict = "REQUIRE_CO_SIGNATURE"
	VerdictRequireHumanReview Verdict = "REQUIRE_HUMAN_REVIEW"
)

// restrictiveness orders verdicts from least to most restrictive, for the
// most-restrictive-first tie-break the final-decision stage applies.
var restrictiveness = map[Verdict]int{
	VerdictPass:               0,
	VerdictRequireCoSignature: 1,
	VerdictRequireHumanReview: 2,
	VerdictDeny:               3,
}

// MoreRestrictive reports whether b is strictly more restrictive than a.
func MoreRestrictive(a, b Verdict) bool {
	return restrictiveness[b] > restrictiveness[a]
}

// StageOutcome is what a single stage decided. JSON-tagged because stage
// history is persisted with the suspended pipeline context.
type StageOutcome struct {
	Stage          Name     `json:"stage"`
	Verdict        Verdict  `json:"verdict"`
	Reason         string   `json:"reason,omitempty"`
	MissingSigners []string `json:"missing_signers,omitempty"` // populated only for VerdictRequireCoSignature
}

// Stage adjudicates one concern of a commitment declaration against the
// pipeline's running context. Implementations must never panic for an
// expected control-flow outcome (deny, suspend) — only for a genuine
// programming error, which the Pipeline converts to StageFailed anyway.
type Stage interface {
	Name() Name
	Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error)
}

// fail builds the StageFailed outcome the pipeline substitutes for any
// stage panic or unexpected error — the fail-closed guarantee.
func fail(stage Name, err error) StageOutcome {
	return StageOutcome{
		Stage:   stage,
		Verdict: VerdictDeny,
		Reason:  fmt.Sprintf("%s: %v", commitment.ErrStageFailed, err),
	}
}
