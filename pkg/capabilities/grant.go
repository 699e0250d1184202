package capabilities

import (
	"sync"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// ValidityWindow bounds when a Grant may be exercised.
type ValidityWindow struct {
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

// Contains reports whether the anchor falls within the window.
func (w ValidityWindow) Contains(anchor time.Time) bool {
	if !w.NotBefore.IsZero() && anchor.Before(w.NotBefore) {
		return false
	}
	if !w.NotAfter.IsZero() && anchor.After(w.NotAfter) {
		return false
	}
	return true
}

// GrantScope bounds what a Grant authorizes: the targets it covers, the
// operations permitted against them, and any resource limits.
type GrantScope struct {
	Targets        []string          `json:"targets"`
	Operations     []string          `json:"operations"`
	ResourceLimits map[string]string `json:"resource_limits,omitempty"`
}

// Grant is a bounded authority issued to a WorldLine. Distinct from the
// ToolCatalog's runtime-invocable Tool: a Grant is a pure authorization
// record and never carries a Handler.
type Grant struct {
	CapabilityID string                  `json:"capability_id"`
	EffectDomain commitment.EffectDomain `json:"effect_domain"`
	Scope        GrantScope              `json:"scope"`
	Validity     ValidityWindow          `json:"validity_window"`
	Issuer       string                  `json:"issuer"`
	Revoked      bool                    `json:"revoked"`
	RevokedAt    time.Time               `json:"revoked_at,omitempty"`
}

// ValidAt reports whether the grant is exercisable at the given temporal
// anchor: within its validity window and not revoked.
func (g *Grant) ValidAt(anchor time.Time) bool {
	if g.Revoked {
		return false
	}
	return g.Validity.Contains(anchor)
}

// Provider resolves which grants a WorldLine holds. Implementations must be
// read-mostly: writes (issuance, revocation) take a writer lock; readers
// observe a consistent snapshot.
type Provider interface {
	HasCapability(worldline, capabilityID string) bool
	GetCapabilities(worldline string) []Grant
}

// InMemoryProvider is a Provider backed by an in-memory map, suitable for
// tests and single-process deployments.
type InMemoryProvider struct {
	mu     sync.RWMutex
	grants map[string][]Grant
}

// NewInMemoryProvider creates an empty capability provider.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{grants: make(map[string][]Grant)}
}

// Issue grants a capability to a worldline.
func (p *InMemoryProvider) Issue(worldline string, g Grant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants[worldline] = append(p.grants[worldline], g)
}

// Revoke marks a previously issued capability as revoked.
func (p *InMemoryProvider) Revoke(worldline, capabilityID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, g := range p.grants[worldline] {
		if g.CapabilityID == capabilityID {
			p.grants[worldline][i].Revoked = true
			p.grants[worldline][i].RevokedAt = at
		}
	}
}

func (p *InMemoryProvider) HasCapability(worldline, capabilityID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, g := range p.grants[worldline] {
		if g.CapabilityID == capabilityID {
			return true
		}
	}
	return false
}

func (p *InMemoryProvider) GetCapabilities(worldline string) []Grant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Grant, len(p.grants[worldline]))
	copy(out, p.grants[worldline])
	return out
}
