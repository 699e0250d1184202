// Package commitment defines the Commitment Declaration — the candidate
// obligation an identity submits to the gate pipeline — and the builder that
// constructs structurally valid declarations.
//
// A declaration is immutable once it enters the gate: nothing in this
// package mutates a Declaration after Build returns it.
package commitment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EffectDomain is one of the closed set of domains a commitment may act in.
type EffectDomain string

// The effect domain set is closed; no caller may introduce a new one.
const (
	DomainCommunication  EffectDomain = "communication"
	DomainData           EffectDomain = "data"
	DomainComputation    EffectDomain = "computation"
	DomainFinance        EffectDomain = "finance"
	DomainGovernance     EffectDomain = "governance"
	DomainInfrastructure EffectDomain = "infrastructure"
	DomainPhysical       EffectDomain = "physical"
	// DomainNone marks a declaration that authorizes no effect domain. Such a
	// declaration may not name targets; CapabilityRefs may be empty only for
	// it (structural rule).
	DomainNone EffectDomain = ""
)

var validDomains = map[EffectDomain]bool{
	DomainCommunication:  true,
	DomainData:           true,
	DomainComputation:    true,
	DomainFinance:        true,
	DomainGovernance:     true,
	DomainInfrastructure: true,
	DomainPhysical:       true,
	DomainNone:           true,
}

// Scope bounds what a declaration asks to do.
type Scope struct {
	EffectDomain EffectDomain `json:"effect_domain"`
	Targets      []string     `json:"targets"`
	Constraints  []string     `json:"constraints,omitempty"`
}

// Declaration is a candidate obligation submitted to the gate. It is
// immutable once constructed; the gate pipeline only ever reads it.
type Declaration struct {
	DeclarationID     string    `json:"declaration_id"`
	DeclaringIdentity string    `json:"declaring_identity"`
	Scope             Scope     `json:"scope"`
	CapabilityRefs    []string  `json:"capability_refs"`
	IntentParent      string    `json:"intent_parent,omitempty"`
	AffectedParties   []string  `json:"affected_parties,omitempty"`
	EvidenceRefs      []string  `json:"evidence_refs,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Builder assembles a Declaration field by field before it is handed to the
// gate. It performs no validation itself — Build returns whatever was set,
// and structural validation is stage 1 of the pipeline's job.
type Builder struct {
	d Declaration
}

// NewBuilder starts a declaration for the given declaring identity.
func NewBuilder(declaringIdentity string) *Builder {
	return &Builder{d: Declaration{
		DeclarationID:     uuid.New().String(),
		DeclaringIdentity: declaringIdentity,
	}}
}

// WithScope sets the effect domain, targets, and constraints.
func (b *Builder) WithScope(domain EffectDomain, targets, constraints []string) *Builder {
	b.d.Scope = Scope{EffectDomain: domain, Targets: targets, Constraints: constraints}
	return b
}

// WithCapabilityRefs sets the capability references the declaration claims.
func (b *Builder) WithCapabilityRefs(refs ...string) *Builder {
	b.d.CapabilityRefs = refs
	return b
}

// WithIntentParent records the causal parent (an Intent-level artifact) this
// commitment escalates from, if any.
func (b *Builder) WithIntentParent(parentID string) *Builder {
	b.d.IntentParent = parentID
	return b
}

// WithAffectedParties records identities whose co-signature may be required.
func (b *Builder) WithAffectedParties(parties ...string) *Builder {
	b.d.AffectedParties = parties
	return b
}

// WithEvidenceRefs attaches supporting evidence references.
func (b *Builder) WithEvidenceRefs(refs ...string) *Builder {
	b.d.EvidenceRefs = refs
	return b
}

// Build finalizes the declaration with a creation timestamp supplied by the
// caller (the gate never calls time.Now() itself, to keep adjudication
// deterministic under replay).
func (b *Builder) Build(at time.Time) *Declaration {
	d := b.d
	d.CreatedAt = at
	return &d
}

// Validate performs the structural checks required before a declaration may
// enter the gate: non-empty declaring identity, a well-formed
// scope, and a capability reference list that may be empty only when the
// effect domain is also empty.
func (d *Declaration) Validate() error {
	if d.DeclaringIdentity == "" {
		return fmt.Errorf("%w: declaring_identity is empty", ErrStructuralInvalid)
	}
	if !validDomains[d.Scope.EffectDomain] {
		return fmt.Errorf("%w: unknown effect domain %q", ErrStructuralInvalid, d.Scope.EffectDomain)
	}
	if d.Scope.EffectDomain == DomainNone && len(d.Scope.Targets) > 0 {
		return fmt.Errorf("%w: scope has targets but no effect domain", ErrStructuralInvalid)
	}
	if len(d.CapabilityRefs) == 0 && d.Scope.EffectDomain != DomainNone {
		return fmt.Errorf("%w: capability_refs may only be empty when effect_domain is empty", ErrStructuralInvalid)
	}
	return nil
}
