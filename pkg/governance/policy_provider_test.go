package governance

import (
	"testing"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

func declarationWithDomain(domain commitment.EffectDomain, targets []string) *commitment.Declaration {
	return commitment.NewBuilder("wl:test").
		WithScope(domain, targets, nil).
		WithCapabilityRefs("cap-1").
		Build(time.Unix(0, 0))
}

func TestCELPolicyProviderApprovesWhenRulesPass(t *testing.T) {
	rules := map[commitment.EffectDomain][]Rule{
		commitment.DomainFinance: {
			{ID: "fin-01", Expression: `targets.size() > 0`},
		},
	}
	p, err := NewCELPolicyProvider(rules, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	d := declarationWithDomain(commitment.DomainFinance, []string{"acct-1"})
	card, err := p.Evaluate(d, time.Unix(100, 0))
	if err != nil {
		t.Fatal(err)
	}
	if card.Decision != DecisionApprove {
		t.Fatalf("expected approve, got %s", card.Decision)
	}
	if card.Version != "1.0.0" {
		t.Fatalf("expected version stamped, got %s", card.Version)
	}
}

func TestCELPolicyProviderDeniesOnRuleFailure(t *testing.T) {
	rules := map[commitment.EffectDomain][]Rule{
		commitment.DomainFinance: {
			{ID: "fin-02", Expression: `targets.size() > 0`, OnDeny: DecisionRequireHumanReview},
		},
	}
	p, err := NewCELPolicyProvider(rules, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	d := declarationWithDomain(commitment.DomainFinance, nil)
	card, err := p.Evaluate(d, time.Unix(100, 0))
	if err != nil {
		t.Fatal(err)
	}
	if card.Decision != DecisionRequireHumanReview {
		t.Fatalf("expected require_human_review, got %s", card.Decision)
	}
}

func TestCELPolicyProviderUngovernedDomainApproves(t *testing.T) {
	p, err := NewCELPolicyProvider(map[commitment.EffectDomain][]Rule{}, "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	d := declarationWithDomain(commitment.DomainData, []string{"bucket-1"})
	card, err := p.Evaluate(d, time.Unix(100, 0))
	if err != nil {
		t.Fatal(err)
	}
	if card.Decision != DecisionApprove {
		t.Fatalf("expected approve for ungoverned domain, got %s", card.Decision)
	}
}

func TestNewCELPolicyProviderRejectsInvalidVersion(t *testing.T) {
	if _, err := NewCELPolicyProvider(nil, "not-a-version"); err == nil {
		t.Fatal("expected error for invalid semver")
	}
}
