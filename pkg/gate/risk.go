package gate

import (
	"strconv"

	"github.com/mapleaiorg/substrate/pkg/capabilities"
	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
)

// riskRank orders risk levels for threshold comparison.
var riskRank = map[governance.RiskLevel]int{
	governance.RiskNone:     0,
	governance.RiskLow:      1,
	governance.RiskMedium:   2,
	governance.RiskHigh:     3,
	governance.RiskCritical: 4,
}

// atLeast reports whether level reaches the threshold.
func atLeast(level, threshold governance.RiskLevel) bool {
	return riskRank[level] >= riskRank[threshold]
}

// maxRisk returns the higher of two risk levels.
func maxRisk(a, b governance.RiskLevel) governance.RiskLevel {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}

// RiskThresholds maps computed risk classes to escalation requirements.
// The mapping pattern is fixed (reaching CoSignAt requires co-signatures,
// reaching HumanAt requires human review); the boundaries are deployment
// policy, injected at construction.
type RiskThresholds struct {
	CoSignAt governance.RiskLevel
	HumanAt  governance.RiskLevel
}

// DefaultRiskThresholds returns the conventional High -> co-sign,
// Critical -> human mapping.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		CoSignAt: governance.RiskHigh,
		HumanAt:  governance.RiskCritical,
	}
}

// domainBaseRisk is each effect domain's floor: a finance or physical
// effect is never Low-risk no matter how narrow its scope.
var domainBaseRisk = map[commitment.EffectDomain]governance.RiskLevel{
	commitment.DomainNone:           governance.RiskNone,
	commitment.DomainCommunication:  governance.RiskLow,
	commitment.DomainData:           governance.RiskLow,
	commitment.DomainComputation:    governance.RiskLow,
	commitment.DomainInfrastructure: governance.RiskMedium,
	commitment.DomainGovernance:     governance.RiskHigh,
	commitment.DomainFinance:        governance.RiskHigh,
	commitment.DomainPhysical:       governance.RiskCritical,
}

// RiskClassifier computes a commitment's risk class from its declared
// scope, the resource limits on the capabilities backing it, and the policy
// provider's risk signal.
type RiskClassifier struct {
	thresholds RiskThresholds
	// wideScopeTargets is the target count at which a declaration's breadth
	// bumps its class one level.
	wideScopeTargets int
	// resourceCeiling bumps the class when any backing grant's numeric
	// resource limit meets it.
	resourceCeiling float64
}

// NewRiskClassifier builds a classifier with the given thresholds.
func NewRiskClassifier(thresholds RiskThresholds) *RiskClassifier {
	return &RiskClassifier{
		thresholds:       thresholds,
		wideScopeTargets: 8,
		resourceCeiling:  10_000,
	}
}

// Thresholds returns the classifier's escalation thresholds.
func (c *RiskClassifier) Thresholds() RiskThresholds { return c.thresholds }

// Classify computes the risk class for a declaration. The policy card's
// risk signal acts as a floor: the classifier may raise it, never lower it.
func (c *RiskClassifier) Classify(d *commitment.Declaration, grants []capabilities.Grant, card *governance.PolicyDecisionCard) governance.RiskLevel {
	class := domainBaseRisk[d.Scope.EffectDomain]

	if len(d.Scope.Targets) >= c.wideScopeTargets {
		class = bump(class)
	}
	for _, g := range grants {
		for _, raw := range g.Scope.ResourceLimits {
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= c.resourceCeiling {
				class = bump(class)
				break
			}
		}
	}
	if card != nil {
		class = maxRisk(class, card.RiskLevel)
	}
	return class
}

func bump(level governance.RiskLevel) governance.RiskLevel {
	switch level {
	case governance.RiskNone:
		return governance.RiskLow
	case governance.RiskLow:
		return governance.RiskMedium
	case governance.RiskMedium:
		return governance.RiskHigh
	default:
		return governance.RiskCritical
	}
}
