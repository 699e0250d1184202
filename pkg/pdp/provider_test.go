package pdp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
)

// staticPDP answers every evaluation the same way.
type staticPDP struct {
	allow bool
	err   error
}

func (s staticPDP) Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	reason := "denied by policy"
	if s.allow {
		reason = ""
	}
	return &DecisionResponse{
		Allow:      s.allow,
		ReasonCode: reason,
		PolicyRef:  "opa://bundles/substrate/v3",
	}, nil
}

func (staticPDP) Backend() Backend   { return BackendOPA }
func (staticPDP) PolicyHash() string { return "sha256:policyset" }

func sampleDeclaration() *commitment.Declaration {
	return commitment.NewBuilder("wl:alpha").
		WithScope(commitment.DomainFinance, []string{"acct-1"}, []string{"amount<=100"}).
		WithCapabilityRefs("cap:CAP-FIN").
		WithAffectedParties("wl:w2").
		Build(time.Unix(1_700_000_000, 0).UTC())
}

func TestProviderMapsAllowToApprove(t *testing.T) {
	p := NewProvider(staticPDP{allow: true})
	at := time.Unix(1_700_000_001, 0).UTC()

	card, err := p.Evaluate(sampleDeclaration(), at)
	require.NoError(t, err)
	assert.Equal(t, governance.DecisionApprove, card.Decision)
	assert.Equal(t, governance.RiskLow, card.RiskLevel)
	assert.Equal(t, []string{"opa://bundles/substrate/v3"}, card.PolicyRefs)
	assert.Equal(t, "sha256:policyset", card.Version)
	assert.Equal(t, at, card.DecidedAt)
	require.Len(t, card.Conditions, 1)
	assert.Contains(t, card.Conditions[0], "decision_hash:sha256:")
}

func TestProviderMapsDenyToDeny(t *testing.T) {
	p := NewProvider(staticPDP{allow: false})
	card, err := p.Evaluate(sampleDeclaration(), time.Unix(1_700_000_001, 0))
	require.NoError(t, err)
	assert.Equal(t, governance.DecisionDeny, card.Decision)
	assert.Equal(t, governance.RiskHigh, card.RiskLevel)
	assert.Equal(t, "denied by policy", card.Rationale)
}

// A failing backend surfaces an error, which the gate's policy stage
// converts to a fail-closed deny — never a default allow.
func TestProviderFailsClosedOnBackendError(t *testing.T) {
	p := NewProvider(staticPDP{err: errors.New("engine down")})
	_, err := p.Evaluate(sampleDeclaration(), time.Unix(1_700_000_001, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opa")
}

// The provider satisfies the gate's policy-provider port, so a PDP backend
// slots into the canonical stage composition.
func TestProviderIsAGatePolicyProvider(t *testing.T) {
	var _ governance.PolicyProvider = NewProvider(staticPDP{allow: true})
}

func TestComputeDecisionHashIsDeterministic(t *testing.T) {
	resp := &DecisionResponse{Allow: true, ReasonCode: "ok", PolicyRef: "opa://p"}
	h1, err := ComputeDecisionHash(resp)
	require.NoError(t, err)
	h2, err := ComputeDecisionHash(resp)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	resp.ReasonCode = "changed"
	h3, err := ComputeDecisionHash(resp)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
