package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapleaiorg/substrate/pkg/capabilities"
	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
	"github.com/mapleaiorg/substrate/pkg/identity"
	"github.com/mapleaiorg/substrate/pkg/ledger"
	"github.com/mapleaiorg/substrate/pkg/observability"
	"github.com/mapleaiorg/substrate/pkg/proofgraph"
)

type gateFixture struct {
	gate   *Gate
	ledger *ledger.CommitmentLedger
	graph  *proofgraph.Graph
	world  *identity.WorldLine
	now    time.Time
}

func newGateFixture(t *testing.T, policy governance.PolicyProvider, caps capabilities.Provider) *gateFixture {
	t.Helper()
	reg, w := testIdentity(t)
	if caps == nil {
		caps = commProvider(w)
	}
	collector := NewCoSignCollector([]byte("secret"))
	stages := CanonicalStages(reg, caps, policy, NewRiskClassifier(DefaultRiskThresholds()), nil, collector, nil)
	pipeline, err := NewPipeline(stages, nil)
	require.NoError(t, err)

	led := ledger.NewCommitmentLedger(nil)
	graph := proofgraph.NewGraph()
	now := time.Unix(1_700_000_100, 0).UTC()
	g := NewGate(pipeline, led, graph, collector, NewHumanReviewQueue(), time.Hour).
		WithClock(func() time.Time { return now })
	return &gateFixture{gate: g, ledger: led, graph: graph, world: w, now: now}
}

func TestGateApprovedCommitment(t *testing.T) {
	f := newGateFixture(t, staticPolicy{decision: governance.DecisionApprove}, nil)
	d := commDeclaration(f.world)

	result, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, result.Verdict)

	rec, err := f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusApproved, rec.Status)
	require.NotNil(t, rec.DecisionCard)
	assert.Equal(t, governance.DecisionApprove, rec.DecisionCard.Decision)

	// Declaration and decision provenance nodes exist and are linked.
	decl, ok := f.graph.ByEvent("decl:" + d.DeclarationID)
	require.True(t, ok)
	decision, ok := f.graph.ByEvent("decide:" + d.DeclarationID)
	require.True(t, ok)
	assert.Equal(t, []string{decl.NodeHash}, decision.Parents)
	assert.Equal(t, 2, f.graph.Len())

	path, err := f.graph.CausalPath(decl.NodeHash, decision.NodeHash)
	require.NoError(t, err)
	assert.Len(t, path, 2)
}

func TestGateDenialWritesCardAndLedger(t *testing.T) {
	f := newGateFixture(t, staticPolicy{decision: governance.DecisionApprove}, capabilities.NewInMemoryProvider())
	d := commitment.NewBuilder(f.world.ID()).
		WithScope(commitment.DomainCommunication, []string{f.world.ID()}, nil).
		WithCapabilityRefs("cap:CAP-MISSING").
		Build(f.now)

	result, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, result.Verdict)
	assert.Contains(t, result.Reason, "insufficient_capabilities")

	rec, err := f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusDenied, rec.Status)
	// A card is present even though policy evaluation never ran.
	require.NotNil(t, rec.DecisionCard)
	assert.Equal(t, governance.DecisionDeny, rec.DecisionCard.Decision)
}

func TestGateCoSignSuspendAndResume(t *testing.T) {
	f := newGateFixture(t, staticPolicy{decision: governance.DecisionRequireCoSignature}, nil)
	d := commitment.NewBuilder(f.world.ID()).
		WithScope(commitment.DomainCommunication, []string{f.world.ID()}, nil).
		WithCapabilityRefs("cap:CAP-COMM").
		WithAffectedParties("wl:w2").
		Build(f.now)

	result, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)
	require.True(t, result.Suspended)
	assert.Equal(t, []string{"wl:w2"}, result.MissingSigners)

	rec, err := f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusAwaitingCoSign, rec.Status)

	resumed, err := f.gate.Resume(context.Background(), d.DeclarationID, ResumeEvent{
		Kind:      EventCoSignatureCollected,
		Signer:    "wl:w2",
		Signature: []byte{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, resumed.Verdict)

	rec, err = f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusApproved, rec.Status)
	assert.Equal(t, "TIER_1_SUPERVISED", string(DeriveTier(resumed.History)))
}

func TestGateHumanReviewDenial(t *testing.T) {
	caps := capabilities.NewInMemoryProvider()
	f := newGateFixture(t, staticPolicy{decision: governance.DecisionApprove, risk: governance.RiskCritical}, caps)
	caps.Issue(f.world.ID(), capabilities.Grant{
		CapabilityID: "cap:CAP-COMM",
		EffectDomain: commitment.DomainCommunication,
		Issuer:       "test",
	})
	d := commDeclaration(f.world)

	result, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)
	require.True(t, result.Suspended)
	assert.Equal(t, VerdictRequireHumanReview, result.Verdict)

	rec, err := f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusAwaitingHuman, rec.Status)

	denied, err := f.gate.Resume(context.Background(), d.DeclarationID, ResumeEvent{
		Kind:   EventHumanDenial,
		Actor:  "operator-1",
		Reason: "too risky this quarter",
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictDeny, denied.Verdict)

	rec, err = f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusDenied, rec.Status)
}

func TestGateHumanReviewApproval(t *testing.T) {
	caps := capabilities.NewInMemoryProvider()
	f := newGateFixture(t, staticPolicy{decision: governance.DecisionApprove, risk: governance.RiskCritical}, caps)
	caps.Issue(f.world.ID(), capabilities.Grant{
		CapabilityID: "cap:CAP-COMM",
		EffectDomain: commitment.DomainCommunication,
		Issuer:       "test",
	})
	d := commDeclaration(f.world)

	result, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)
	require.True(t, result.Suspended)

	approved, err := f.gate.Resume(context.Background(), d.DeclarationID, ResumeEvent{
		Kind:  EventHumanApproval,
		Actor: "operator-1",
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, approved.Verdict)
	assert.Equal(t, "TIER_2_MANUAL", string(DeriveTier(approved.History)))

	rec, err := f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusApproved, rec.Status)
}

func TestGateResumeIsIdempotent(t *testing.T) {
	f := newGateFixture(t, staticPolicy{decision: governance.DecisionRequireCoSignature}, nil)
	d := commitment.NewBuilder(f.world.ID()).
		WithScope(commitment.DomainCommunication, []string{f.world.ID()}, nil).
		WithCapabilityRefs("cap:CAP-COMM").
		WithAffectedParties("wl:w2").
		Build(f.now)

	_, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)

	event := ResumeEvent{Kind: EventCoSignatureCollected, Signer: "wl:w2"}
	first, err := f.gate.Resume(context.Background(), d.DeclarationID, event)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, first.Verdict)

	// Replaying the same event is a no-op returning the recorded result.
	second, err := f.gate.Resume(context.Background(), d.DeclarationID, event)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, second.Verdict)

	rec, err := f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusApproved, rec.Status)
}

// A wired (but disabled) observability provider must not change gate
// behavior: spans and counters no-op, verdicts are identical.
func TestGateWithObservabilityProvider(t *testing.T) {
	obs, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	f := newGateFixture(t, staticPolicy{decision: governance.DecisionRequireCoSignature}, nil)
	f.gate.WithObservability(obs)
	f.ledger.WithObservability(obs)

	d := commitment.NewBuilder(f.world.ID()).
		WithScope(commitment.DomainCommunication, []string{f.world.ID()}, nil).
		WithCapabilityRefs("cap:CAP-COMM").
		WithAffectedParties("wl:w2").
		Build(f.now)

	result, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)
	require.True(t, result.Suspended)

	resumed, err := f.gate.Resume(context.Background(), d.DeclarationID, ResumeEvent{
		Kind: EventCoSignatureCollected, Signer: "wl:w2",
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, resumed.Verdict)
}

func TestGateDeadlineExpiry(t *testing.T) {
	f := newGateFixture(t, staticPolicy{decision: governance.DecisionRequireCoSignature}, nil)
	d := commitment.NewBuilder(f.world.ID()).
		WithScope(commitment.DomainCommunication, []string{f.world.ID()}, nil).
		WithCapabilityRefs("cap:CAP-COMM").
		WithAffectedParties("wl:w2").
		Build(f.now)

	_, err := f.gate.Adjudicate(context.Background(), d)
	require.NoError(t, err)

	denied, err := f.gate.ExpireDeadlines(f.now.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{d.DeclarationID}, denied)

	rec, err := f.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusDenied, rec.Status)
	require.NotNil(t, rec.DecisionCard)
	assert.Contains(t, rec.DecisionCard.Rationale, "TIMEOUT")
}
