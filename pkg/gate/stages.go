package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/mapleaiorg/substrate/pkg/capabilities"
	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
	"github.com/mapleaiorg/substrate/pkg/identity"
	"github.com/mapleaiorg/substrate/pkg/kernel/retry"
)

// declarationStage runs the structural validation of the declaration stage:
// the field-level checks plus the JSON Schema shape check.
type declarationStage struct{}

func NewDeclarationStage() Stage { return declarationStage{} }

func (declarationStage) Name() Name { return StageDeclaration }

func (declarationStage) Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error) {
	if err := pctx.Declaration.Validate(); err != nil {
		return StageOutcome{Stage: StageDeclaration, Verdict: VerdictDeny, Reason: err.Error()}, nil
	}
	if err := commitment.ValidateSchema(pctx.Declaration); err != nil {
		return StageOutcome{Stage: StageDeclaration, Verdict: VerdictDeny, Reason: err.Error()}, nil
	}
	return StageOutcome{Stage: StageDeclaration, Verdict: VerdictPass}, nil
}

// identityBindingStage resolves the declaring identity's WorldLine and
// checks continuity.
type identityBindingStage struct {
	registry *identity.Registry
}

func NewIdentityBindingStage(registry *identity.Registry) Stage {
	return identityBindingStage{registry: registry}
}

func (identityBindingStage) Name() Name { return StageIdentityBinding }

func (s identityBindingStage) Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error) {
	wl, err := s.registry.Lookup(pctx.Declaration.DeclaringIdentity)
	if err != nil {
		return StageOutcome{Stage: StageIdentityBinding, Verdict: VerdictDeny,
			Reason: fmt.Sprintf("%s: %v", commitment.ErrIdentityUnknown, err)}, nil
	}
	if err := wl.VerifyContinuity(); err != nil {
		return StageOutcome{Stage: StageIdentityBinding, Verdict: VerdictDeny,
			Reason: fmt.Sprintf("%s: %v", commitment.ErrContinuityBroken, err)}, nil
	}
	return StageOutcome{Stage: StageIdentityBinding, Verdict: VerdictPass}, nil
}

// capabilityCheckStage verifies the declaring identity holds a live grant
// for every capability the declaration cites, and that those grants cover
// the declared effect domain.
type capabilityCheckStage struct {
	provider capabilities.Provider
}

func NewCapabilityCheckStage(provider capabilities.Provider) Stage {
	return capabilityCheckStage{provider: provider}
}

func (capabilityCheckStage) Name() Name { return StageCapabilityCheck }

func (s capabilityCheckStage) Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error) {
	d := pctx.Declaration
	if d.Scope.EffectDomain == commitment.DomainNone {
		return StageOutcome{Stage: StageCapabilityCheck, Verdict: VerdictPass}, nil
	}

	grants := s.provider.GetCapabilities(d.DeclaringIdentity)
	covered := false
	for _, ref := range d.CapabilityRefs {
		var matched *capabilities.Grant
		for i := range grants {
			if grants[i].CapabilityID == ref {
				matched = &grants[i]
				break
			}
		}
		if matched == nil || !matched.ValidAt(pctx.At) {
			return StageOutcome{Stage: StageCapabilityCheck, Verdict: VerdictDeny,
				Reason: fmt.Sprintf("%s: capability %s not held or not valid", commitment.ErrInsufficientCapability, ref)}, nil
		}
		if matched.EffectDomain == d.Scope.EffectDomain {
			covered = true
		}
	}
	if !covered {
		return StageOutcome{Stage: StageCapabilityCheck, Verdict: VerdictDeny,
			Reason: fmt.Sprintf("%s: no held grant covers domain %s", commitment.ErrDomainNotCovered, d.Scope.EffectDomain)}, nil
	}
	return StageOutcome{Stage: StageCapabilityCheck, Verdict: VerdictPass}, nil
}

// policyEvalStage delegates to an injected policy provider and attaches the
// resulting decision card. Transient provider errors are
// retried with deterministic bounded backoff; exhausting the retry budget
// is a stage failure, which the pipeline converts to a fail-closed deny.
type policyEvalStage struct {
	provider governance.PolicyProvider
	backoff  retry.BackoffPolicy
	sleep    func(time.Duration)
}

func NewPolicyEvalStage(provider governance.PolicyProvider) Stage {
	return &policyEvalStage{
		provider: provider,
		backoff: retry.BackoffPolicy{
			PolicyID:    "gate-policy-eval",
			BaseMs:      50,
			MaxMs:       2_000,
			MaxJitterMs: 25,
			MaxAttempts: 3,
		},
		sleep: time.Sleep,
	}
}

func (*policyEvalStage) Name() Name { return StagePolicyEval }

func (s *policyEvalStage) Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error) {
	var card *governance.PolicyDecisionCard
	var err error
	for attempt := 0; attempt < s.backoff.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := retry.ComputeBackoff(retry.BackoffParams{
				PolicyID:     s.backoff.PolicyID,
				EffectID:     pctx.CommitmentID,
				AttemptIndex: attempt,
			}, s.backoff)
			select {
			case <-ctx.Done():
				return StageOutcome{}, ctx.Err()
			default:
				s.sleep(delay)
			}
		}
		card, err = s.provider.Evaluate(pctx.Declaration, pctx.At)
		if err == nil {
			break
		}
	}
	if err != nil {
		return StageOutcome{}, fmt.Errorf("policy provider failed after %d attempts: %w", s.backoff.MaxAttempts, err)
	}
	pctx.DecisionCard = card

	switch card.Decision {
	case governance.DecisionApprove:
		return StageOutcome{Stage: StagePolicyEval, Verdict: VerdictPass}, nil
	case governance.DecisionDeny:
		return StageOutcome{Stage: StagePolicyEval, Verdict: VerdictDeny,
			Reason: fmt.Sprintf("%s: %s", commitment.ErrPolicyDenied, card.Rationale)}, nil
	case governance.DecisionRequireCoSignature:
		return StageOutcome{Stage: StagePolicyEval, Verdict: VerdictRequireCoSignature,
			Reason: card.Rationale, MissingSigners: pctx.Declaration.AffectedParties}, nil
	case governance.DecisionRequireHumanReview:
		return StageOutcome{Stage: StagePolicyEval, Verdict: VerdictRequireHumanReview, Reason: card.Rationale}, nil
	default:
		return StageOutcome{}, fmt.Errorf("unknown policy decision %q", card.Decision)
	}
}

// riskAssessmentStage computes the commitment's risk class and applies the
// threshold escalations: reaching the co-sign threshold adds
// the affected parties to the required-signer set; reaching the human
// threshold suspends for review. It also charges the declaration against
// the aggregate risk accounting window, denying outright when the ceiling
// leaves no approval path.
type riskAssessmentStage struct {
	classifier *RiskClassifier
	accounting *governance.AggregateRiskAccounting
	provider   capabilities.Provider
	riskCost   func(*commitment.Declaration) float64
}

func NewRiskAssessmentStage(classifier *RiskClassifier, accounting *governance.AggregateRiskAccounting, provider capabilities.Provider, riskCost func(*commitment.Declaration) float64) Stage {
	return riskAssessmentStage{
		classifier: classifier,
		accounting: accounting,
		provider:   provider,
		riskCost:   riskCost,
	}
}

func (riskAssessmentStage) Name() Name { return StageRiskAssessment }

func (s riskAssessmentStage) Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error) {
	d := pctx.Declaration

	if s.accounting != nil {
		cost := 1.0
		if s.riskCost != nil {
			cost = s.riskCost(d)
		}
		if err := s.accounting.CheckAndRecord(string(d.Scope.EffectDomain), cost); err != nil {
			return StageOutcome{Stage: StageRiskAssessment, Verdict: VerdictDeny,
				Reason: fmt.Sprintf("%s: %v", commitment.ErrRiskExceeded, err)}, nil
		}
	}

	var grants []capabilities.Grant
	if s.provider != nil {
		grants = s.provider.GetCapabilities(d.DeclaringIdentity)
	}
	class := s.classifier.Classify(d, grants, pctx.DecisionCard)
	pctx.RiskClass = class

	thresholds := s.classifier.Thresholds()
	switch {
	case atLeast(class, thresholds.HumanAt):
		return StageOutcome{Stage: StageRiskAssessment, Verdict: VerdictRequireHumanReview,
			Reason: fmt.Sprintf("risk class %s requires human review", class)}, nil
	case atLeast(class, thresholds.CoSignAt):
		return StageOutcome{Stage: StageRiskAssessment, Verdict: VerdictRequireCoSignature,
			Reason:         fmt.Sprintf("risk class %s requires co-signatures", class),
			MissingSigners: d.AffectedParties}, nil
	default:
		return StageOutcome{Stage: StageRiskAssessment, Verdict: VerdictPass}, nil
	}
}

// coSignatureStage collects the signer set accumulated by the policy and
// risk stages. A still-unsatisfied quorum suspends the
// pipeline rather than denying it.
type coSignatureStage struct {
	collector *CoSignCollector
}

func NewCoSignatureStage(collector *CoSignCollector) Stage {
	return coSignatureStage{collector: collector}
}

func (coSignatureStage) Name() Name { return StageCoSignature }

func (s coSignatureStage) Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error) {
	if len(pctx.RequiredSigners) == 0 {
		return StageOutcome{Stage: StageCoSignature, Verdict: VerdictPass}, nil
	}
	s.collector.Require(pctx.CommitmentID, pctx.RequiredSigners)
	satisfied, missing := s.collector.Satisfied(pctx.CommitmentID)
	if !satisfied {
		return StageOutcome{Stage: StageCoSignature, Verdict: VerdictRequireCoSignature,
			Reason: fmt.Sprintf("%s", commitment.ErrCoSignatureMissing), MissingSigners: missing}, nil
	}
	return StageOutcome{Stage: StageCoSignature, Verdict: VerdictPass}, nil
}

// finalDecisionStage resolves the pipeline's running verdict into the
// terminal outcome. By the time it runs, suspensions have
// either cleared or halted the pipeline, so the running verdict is the
// answer.
type finalDecisionStage struct{}

func NewFinalDecisionStage() Stage { return finalDecisionStage{} }

func (finalDecisionStage) Name() Name { return StageFinalDecision }

func (finalDecisionStage) Evaluate(ctx context.Context, pctx *PipelineContext) (StageOutcome, error) {
	verdict := pctx.RunningVerdict
	if verdict == "" {
		verdict = VerdictPass
	}
	return StageOutcome{Stage: StageFinalDecision, Verdict: verdict}, nil
}

// CanonicalStages assembles the seven stages in their required order from
// the gate's injected providers, ready to hand to NewPipeline.
func CanonicalStages(
	registry *identity.Registry,
	caps capabilities.Provider,
	policy governance.PolicyProvider,
	classifier *RiskClassifier,
	accounting *governance.AggregateRiskAccounting,
	collector *CoSignCollector,
	riskCost func(*commitment.Declaration) float64,
) []Stage {
	return []Stage{
		NewDeclarationStage(),
		NewIdentityBindingStage(registry),
		NewCapabilityCheckStage(caps),
		NewPolicyEvalStage(policy),
		NewRiskAssessmentStage(classifier, accounting, caps, riskCost),
		NewCoSignatureStage(collector),
		NewFinalDecisionStage(),
	}
}
