package pdp

import (
	"context"
	"fmt"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
)

// Provider adapts a PolicyDecisionPoint into the gate's PolicyProvider
// shape, so OPA- or Cedar-backed engines can adjudicate commitments
// without knowing the gate's types. Fail-closed: any backend error
// propagates and the policy stage denies.
type Provider struct {
	pdp PolicyDecisionPoint
}

// NewProvider wraps a decision point.
func NewProvider(pdp PolicyDecisionPoint) *Provider {
	return &Provider{pdp: pdp}
}

// Evaluate implements governance.PolicyProvider.
func (p *Provider) Evaluate(d *commitment.Declaration, at time.Time) (*governance.PolicyDecisionCard, error) {
	req := &DecisionRequest{
		Principal: d.DeclaringIdentity,
		Action:    "commit",
		Resource:  string(d.Scope.EffectDomain),
		Context: map[string]any{
			"targets":          d.Scope.Targets,
			"constraints":      d.Scope.Constraints,
			"capability_refs":  d.CapabilityRefs,
			"affected_parties": d.AffectedParties,
		},
		Timestamp: at,
	}

	resp, err := p.pdp.Evaluate(context.Background(), req)
	if err != nil {
		return nil, fmt.Errorf("pdp: %s backend evaluation failed: %w", p.pdp.Backend(), err)
	}
	if resp.DecisionHash == "" {
		hash, err := ComputeDecisionHash(resp)
		if err != nil {
			return nil, err
		}
		resp.DecisionHash = hash
	}

	decision := governance.DecisionDeny
	risk := governance.RiskHigh
	rationale := resp.ReasonCode
	if resp.Allow {
		decision = governance.DecisionApprove
		risk = governance.RiskLow
		if rationale == "" {
			rationale = "allowed by " + string(p.pdp.Backend()) + " policy"
		}
	}

	return &governance.PolicyDecisionCard{
		Decision:   decision,
		Rationale:  rationale,
		RiskLevel:  risk,
		PolicyRefs: []string{resp.PolicyRef},
		Conditions: []string{"decision_hash:" + resp.DecisionHash},
		DecidedAt:  at,
		Version:    p.pdp.PolicyHash(),
	}, nil
}
