package commitment

import "errors"

// Sentinel errors forming the closed semantic taxonomy. Stages wrap these
// with errors.Is/errors.As-compatible context; nothing in the pipeline
// panics for an expected control-flow outcome.
var (
	ErrStructuralInvalid          = errors.New("structural_invalid")
	ErrIdentityUnknown            = errors.New("identity_unknown")
	ErrContinuityBroken           = errors.New("continuity_broken")
	ErrInsufficientCapability     = errors.New("insufficient_capabilities")
	ErrDomainNotCovered           = errors.New("domain_not_covered")
	ErrPolicyDenied               = errors.New("policy_denied")
	ErrRiskExceeded               = errors.New("risk_exceeded")
	ErrCoSignatureMissing         = errors.New("co_signature_missing")
	ErrHumanReviewPending         = errors.New("human_review_pending")
	ErrStageFailed                = errors.New("stage_failed")
	ErrLedgerImmutability         = errors.New("ledger_immutability_violation")
	ErrInvalidLifecycleTransition = errors.New("invalid_lifecycle_transition")
	ErrIntegrityFailure           = errors.New("integrity_failure")
	ErrEscalationViolation        = errors.New("escalation_violation")
	ErrExpired                    = errors.New("expired")
)
