package governance

import (
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// PolicyProvider is the gate's injected policy-evaluation dependency . Implementations must be fail-closed: any evaluation error is a
// DENY, never a panic or a default-allow.
type PolicyProvider interface {
	Evaluate(d *commitment.Declaration, at time.Time) (*PolicyDecisionCard, error)
}

// Rule is a single named CEL expression evaluated against a declaration.
// Expressions see `scope`, `domain`, `capability_refs`, and `targets` as CEL
// variables and must resolve to a bool; false denies.
type Rule struct {
	ID         string
	Expression string
	// OnDeny is the outcome recorded when this rule evaluates false: DENY,
	// REQUIRE_CO_SIGNATURE, or REQUIRE_HUMAN_REVIEW. Empty defaults to DENY.
	OnDeny Decision
}

// CELPolicyProvider evaluates a declaration against a registered set of CEL
// rules per effect domain, with per-expression program caching so repeated
// evaluation of the same rule text across commitments doesn't recompile.
type CELPolicyProvider struct {
	env     *cel.Env
	mu      sync.RWMutex
	prgs    map[string]cel.Program
	rules   map[commitment.EffectDomain][]Rule
	version string
}

// NewCELPolicyProvider builds a policy provider over the given rule set,
// keyed by effect domain so each commitment only evaluates the rules that
// govern its declared domain. version must be a valid semantic version; it
// is stamped onto every card this provider issues so downstream consumers
// can tell which policy generation adjudicated a commitment.
func NewCELPolicyProvider(rules map[commitment.EffectDomain][]Rule, version string) (*CELPolicyProvider, error) {
	if _, err := semver.NewVersion(version); err != nil {
		return nil, fmt.Errorf("governance: invalid policy version %q: %w", version, err)
	}
	env, err := cel.NewEnv(
		cel.Variable("domain", cel.StringType),
		cel.Variable("scope", cel.DynType),
		cel.Variable("capability_refs", cel.ListType(cel.StringType)),
		cel.Variable("targets", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("governance: failed to build CEL environment: %w", err)
	}
	return &CELPolicyProvider{
		env:     env,
		prgs:    make(map[string]cel.Program),
		rules:   rules,
		version: version,
	}, nil
}

func (p *CELPolicyProvider) program(expr string) (cel.Program, error) {
	p.mu.RLock()
	prg, ok := p.prgs[expr]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, ok = p.prgs[expr]; ok {
		return prg, nil
	}
	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("governance: compile %q: %w", expr, issues.Err())
	}
	prg, err := p.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("governance: program %q: %w", expr, err)
	}
	p.prgs[expr] = prg
	return prg, nil
}

// Evaluate runs every rule registered for the declaration's effect domain in
// order, short-circuiting on the first non-approve outcome. No matching
// rules is an implicit approve: a domain with no registered policy is
// ungoverned by design, not silently denied.
func (p *CELPolicyProvider) Evaluate(d *commitment.Declaration, at time.Time) (*PolicyDecisionCard, error) {
	input := map[string]any{
		"domain":          string(d.Scope.EffectDomain),
		"scope":           d.Scope.Constraints,
		"capability_refs": d.CapabilityRefs,
		"targets":         d.Scope.Targets,
	}

	refs := make([]string, 0, len(p.rules[d.Scope.EffectDomain]))
	for _, rule := range p.rules[d.Scope.EffectDomain] {
		refs = append(refs, rule.ID)
		prg, err := p.program(rule.Expression)
		if err != nil {
			return nil, err
		}
		out, _, err := prg.Eval(input)
		if err != nil {
			return nil, fmt.Errorf("governance: eval rule %s: %w", rule.ID, err)
		}
		pass, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("governance: rule %s did not evaluate to bool", rule.ID)
		}
		if !pass {
			decision := rule.OnDeny
			if decision == "" {
				decision = DecisionDeny
			}
			return &PolicyDecisionCard{
				Decision:   decision,
				Rationale:  fmt.Sprintf("rule %s denied commitment in domain %s", rule.ID, d.Scope.EffectDomain),
				RiskLevel:  RiskHigh,
				PolicyRefs: refs,
				DecidedAt:  at,
				Version:    p.version,
			}, nil
		}
	}

	return &PolicyDecisionCard{
		Decision:   DecisionApprove,
		Rationale:  "all registered policy rules satisfied",
		RiskLevel:  RiskLow,
		PolicyRefs: refs,
		DecidedAt:  at,
		Version:    p.version,
	}, nil
}
