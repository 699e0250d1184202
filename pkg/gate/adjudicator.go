package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/executor"
	"github.com/mapleaiorg/substrate/pkg/governance"
	"github.com/mapleaiorg/substrate/pkg/ledger"
	"github.com/mapleaiorg/substrate/pkg/observability"
	"github.com/mapleaiorg/substrate/pkg/proofgraph"
)

// ResumeEventKind identifies how a suspended adjudication is being resolved.
type ResumeEventKind string

const (
	EventCoSignatureCollected ResumeEventKind = "CO_SIGNATURE_COLLECTED"
	EventHumanApproval        ResumeEventKind = "HUMAN_APPROVAL"
	EventHumanDenial          ResumeEventKind = "HUMAN_DENIAL"
)

// ResumeEvent is an externally supplied resolution for a suspended
// commitment.
type ResumeEvent struct {
	Kind      ResumeEventKind
	Signer    string
	Signature []byte
	Actor     string
	Reason    string
}

// Gate is the adjudication service around the seven-stage pipeline: it owns
// the ledger writes, the provenance edges, and the suspension/resumption
// protocol. The pipeline decides; the Gate records.
type Gate struct {
	pipeline      *Pipeline
	ledger        *ledger.CommitmentLedger
	graph         *proofgraph.Graph
	cosign        *CoSignCollector
	reviews       *HumanReviewQueue
	suspensionTTL time.Duration
	clock         func() time.Time
	tracer        trace.Tracer
	obs           *observability.Provider

	mu      sync.Mutex
	results map[string]*AdjudicationResult
}

// NewGate wires a validated pipeline to its ledger, provenance graph, and
// suspension machinery. suspensionTTL bounds how long a commitment may wait
// for co-signatures or human review before it is denied on timeout.
func NewGate(p *Pipeline, l *ledger.CommitmentLedger, g *proofgraph.Graph, cosign *CoSignCollector, reviews *HumanReviewQueue, suspensionTTL time.Duration) *Gate {
	return &Gate{
		pipeline:      p,
		ledger:        l,
		graph:         g,
		cosign:        cosign,
		reviews:       reviews,
		suspensionTTL: suspensionTTL,
		clock:         time.Now,
		tracer:        otel.Tracer("substrate.gate"),
		results:       make(map[string]*AdjudicationResult),
	}
}

// WithClock overrides the gate's clock for deterministic tests.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// WithObservability routes the gate's spans and domain metrics —
// adjudication verdicts, the awaiting-resolution gauge — through the
// given provider instead of the global tracer.
func (g *Gate) WithObservability(p *observability.Provider) *Gate {
	g.obs = p
	g.tracer = p.Tracer()
	return g
}

// observe records an adjudication outcome and moves the suspension gauge.
// delta is +1 when this outcome suspends the commitment, -1 when it
// resolves a prior suspension, 0 otherwise.
func (g *Gate) observe(ctx context.Context, result *AdjudicationResult, delta int64) {
	if g.obs == nil {
		return
	}
	g.obs.RecordAdjudication(ctx, string(result.Verdict), result.Suspended)
	if delta != 0 {
		g.obs.TrackSuspension(ctx, delta)
	}
}

// Adjudicate enters a declaration into the ledger and runs it through the
// pipeline. The returned result is terminal (Approved/Denied) or a
// suspension (co-signature or human review pending).
func (g *Gate) Adjudicate(ctx context.Context, d *commitment.Declaration) (*AdjudicationResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.adjudicate",
		trace.WithAttributes(attribute.String("commitment.id", d.DeclarationID)))
	defer span.End()

	at := g.clock()
	if _, err := g.ledger.Append(d, at); err != nil {
		return nil, err
	}
	if err := g.insertDeclarationNode(d, at); err != nil {
		return nil, err
	}

	result, err := g.pipeline.Adjudicate(ctx, d, at, at.Add(g.suspensionTTL))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("gate.verdict", string(result.Verdict)))
	if err := g.settle(commitment.StatusDeclared, result, at); err != nil {
		return nil, err
	}
	delta := int64(0)
	if result.Suspended {
		delta = 1
	}
	g.observe(ctx, result, delta)
	return result, nil
}

// Resume applies an external resolution to a suspended commitment and, if
// the suspension has cleared, completes the pipeline. Resume is idempotent:
// re-delivering an event for an already-resolved commitment returns the
// recorded result without re-executing anything.
func (g *Gate) Resume(ctx context.Context, commitmentID string, event ResumeEvent) (*AdjudicationResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.resume",
		trace.WithAttributes(
			attribute.String("commitment.id", commitmentID),
			attribute.String("gate.resume_event", string(event.Kind))))
	defer span.End()

	rec, err := g.ledger.Get(commitmentID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case commitment.StatusAwaitingCoSign, commitment.StatusAwaitingHuman:
		// fall through to resolution below
	default:
		// Already resolved: idempotent replay returns the recorded result.
		if result := g.recorded(commitmentID); result != nil {
			return result, nil
		}
		return resultFromRecord(rec), nil
	}

	at := g.clock()
	switch event.Kind {
	case EventCoSignatureCollected:
		if rec.Status != commitment.StatusAwaitingCoSign {
			return nil, fmt.Errorf("%w: commitment %s is %s, not awaiting co-signature",
				commitment.ErrInvalidLifecycleTransition, commitmentID, rec.Status)
		}
		if err := g.cosign.Sign(commitmentID, event.Signer); err != nil {
			return nil, err
		}

	case EventHumanApproval:
		if rec.Status != commitment.StatusAwaitingHuman {
			return nil, fmt.Errorf("%w: commitment %s is %s, not awaiting human review",
				commitment.ErrInvalidLifecycleTransition, commitmentID, rec.Status)
		}
		if g.reviews != nil {
			_ = g.reviews.Decide(commitmentID, true)
		}
		if err := g.clearHumanHold(commitmentID); err != nil {
			return nil, err
		}

	case EventHumanDenial:
		if rec.Status != commitment.StatusAwaitingHuman {
			return nil, fmt.Errorf("%w: commitment %s is %s, not awaiting human review",
				commitment.ErrInvalidLifecycleTransition, commitmentID, rec.Status)
		}
		if g.reviews != nil {
			_ = g.reviews.Decide(commitmentID, false)
		}
		result, err := g.denySuspended(rec, fmt.Sprintf("human review denied: %s", event.Reason), at)
		if err != nil {
			return nil, err
		}
		g.observe(ctx, result, -1)
		return result, nil

	default:
		return nil, fmt.Errorf("gate: unknown resume event %q", event.Kind)
	}

	result, err := g.pipeline.Resume(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	if result.Suspended {
		// Quorum still unmet: the commitment stays in its awaiting state.
		g.observe(ctx, result, 0)
		return result, nil
	}
	if err := g.settle(rec.Status, result, at); err != nil {
		return nil, err
	}
	g.observe(ctx, result, -1)
	return result, nil
}

// ExpireDeadlines denies every suspended commitment whose deadline has
// passed, recording the timeout as an explicit denial rather than a silent
// discard. It returns the ids it denied.
func (g *Gate) ExpireDeadlines(now time.Time) ([]string, error) {
	contexts, err := g.pipeline.Store().All()
	if err != nil {
		return nil, err
	}
	var denied []string
	for _, pctx := range contexts {
		if pctx.Deadline.IsZero() || !now.After(pctx.Deadline) {
			continue
		}
		rec, err := g.ledger.Get(pctx.CommitmentID)
		if err != nil {
			continue
		}
		if rec.Status != commitment.StatusAwaitingCoSign && rec.Status != commitment.StatusAwaitingHuman {
			continue
		}
		result, err := g.denySuspended(rec, "TIMEOUT: suspension deadline exceeded", now)
		if err != nil {
			return denied, err
		}
		g.observe(context.Background(), result, -1)
		denied = append(denied, pctx.CommitmentID)
	}
	return denied, nil
}

// settle writes the pipeline's outcome to the ledger and provenance graph.
// from is the ledger status the commitment currently holds.
func (g *Gate) settle(from commitment.Status, result *AdjudicationResult, at time.Time) error {
	id := result.CommitmentID

	switch {
	case result.Suspended && result.Verdict == VerdictRequireCoSignature:
		return g.ledger.Transition(id, from, commitment.StatusAwaitingCoSign, at, "gate")

	case result.Suspended && result.Verdict == VerdictRequireHumanReview:
		if err := g.ledger.Transition(id, from, commitment.StatusAwaitingHuman, at, "gate"); err != nil {
			return err
		}
		if g.reviews != nil {
			g.reviews.Submit(id, result.Reason, at.Add(g.suspensionTTL))
		}
		return nil

	case result.Verdict == VerdictPass:
		card := g.ensureCard(result, governance.DecisionApprove, "all gate stages passed", at)
		if err := g.ledger.AttachDecision(id, card); err != nil {
			return err
		}
		if err := g.ledger.Transition(id, from, commitment.StatusApproved, at, "gate"); err != nil {
			return err
		}
		g.record(result)
		return g.insertDecisionNode(result, card, at)

	case result.Verdict == VerdictDeny:
		card := g.ensureCard(result, governance.DecisionDeny, result.Reason, at)
		if err := g.ledger.AttachDecision(id, card); err != nil {
			return err
		}
		if err := g.ledger.Transition(id, from, commitment.StatusDenied, at, "gate"); err != nil {
			return err
		}
		g.record(result)
		return g.insertDecisionNode(result, card, at)
	}

	return fmt.Errorf("gate: unsettleable result %q for commitment %s", result.Verdict, id)
}

// denySuspended resolves an awaiting commitment to Denied with the given
// reason (human denial or timeout).
func (g *Gate) denySuspended(rec *ledger.CommitmentRecord, reason string, at time.Time) (*AdjudicationResult, error) {
	result := &AdjudicationResult{
		CommitmentID: rec.CommitmentID,
		Verdict:      VerdictDeny,
		Reason:       reason,
	}
	// The final card records the denial itself; the policy stage's earlier
	// card only documented the suspension requirement. Its refs and risk
	// signal carry over.
	card := &governance.PolicyDecisionCard{
		Decision:  governance.DecisionDeny,
		Rationale: reason,
		RiskLevel: governance.RiskNone,
		DecidedAt: at,
		Version:   "0.0.0",
	}
	if pctx, err := g.pipeline.Store().Load(rec.CommitmentID); err == nil {
		result.RiskClass = pctx.RiskClass
		result.History = pctx.History
		if pctx.RiskClass != "" {
			card.RiskLevel = pctx.RiskClass
		}
		if pctx.DecisionCard != nil {
			card.PolicyRefs = pctx.DecisionCard.PolicyRefs
			card.Version = pctx.DecisionCard.Version
		}
	}
	result.DecisionCard = card
	_ = g.pipeline.Store().Delete(rec.CommitmentID)

	if err := g.settle(rec.Status, result, at); err != nil {
		return nil, err
	}
	return result, nil
}

// clearHumanHold discharges the human-review verdict on a suspended
// context so resumption proceeds to the remaining stages.
func (g *Gate) clearHumanHold(commitmentID string) error {
	pctx, err := g.pipeline.Store().Load(commitmentID)
	if err != nil {
		return err
	}
	if pctx.RunningVerdict == VerdictRequireHumanReview {
		pctx.RunningVerdict = VerdictPass
	}
	return g.pipeline.Store().Save(pctx)
}

// ensureCard returns the pipeline's decision card, or synthesizes one when
// the pipeline halted before policy evaluation ran — every ledger entry
// carries a card, even for a stage-1 structural denial.
func (g *Gate) ensureCard(result *AdjudicationResult, decision governance.Decision, rationale string, at time.Time) *governance.PolicyDecisionCard {
	if result.DecisionCard != nil {
		return result.DecisionCard
	}
	risk := result.RiskClass
	if risk == "" {
		risk = governance.RiskNone
	}
	return &governance.PolicyDecisionCard{
		Decision:  decision,
		Rationale: rationale,
		RiskLevel: risk,
		DecidedAt: at,
		Version:   "0.0.0",
	}
}

func (g *Gate) insertDeclarationNode(d *commitment.Declaration, at time.Time) error {
	payload, err := proofgraph.EncodePayload(d)
	if err != nil {
		return err
	}
	var parents []string
	if d.IntentParent != "" {
		if parent, ok := g.graph.ByEvent(d.IntentParent); ok {
			parents = append(parents, parent.NodeHash)
		}
	}
	_, err = g.graph.Insert(&proofgraph.Node{
		Kind:         proofgraph.NodeTypeDeclaration,
		Parents:      parents,
		Payload:      payload,
		Principal:    d.DeclaringIdentity,
		Timestamp:    at.UnixMilli(),
		EventID:      declarationEventID(d.DeclarationID),
		WorldLine:    d.DeclaringIdentity,
		CommitmentID: d.DeclarationID,
		StageClass:   string(StageDeclaration),
	})
	return err
}

func (g *Gate) insertDecisionNode(result *AdjudicationResult, card *governance.PolicyDecisionCard, at time.Time) error {
	payload, err := proofgraph.EncodePayload(card)
	if err != nil {
		return err
	}
	var parents []string
	if decl, ok := g.graph.ByEvent(declarationEventID(result.CommitmentID)); ok {
		parents = append(parents, decl.NodeHash)
	}
	policyRef := ""
	if len(card.PolicyRefs) > 0 {
		policyRef = card.PolicyRefs[0]
	}
	_, err = g.graph.Insert(&proofgraph.Node{
		Kind:         proofgraph.NodeTypeDecision,
		Parents:      parents,
		Payload:      payload,
		Principal:    "gate",
		Timestamp:    at.UnixMilli(),
		EventID:      decisionEventID(result.CommitmentID),
		CommitmentID: result.CommitmentID,
		PolicyRef:    policyRef,
		StageClass:   string(StageFinalDecision),
	})
	return err
}

func (g *Gate) record(result *AdjudicationResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[result.CommitmentID] = result
}

func (g *Gate) recorded(commitmentID string) *AdjudicationResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.results[commitmentID]
}

func resultFromRecord(rec *ledger.CommitmentRecord) *AdjudicationResult {
	verdict := VerdictDeny
	if rec.Status != commitment.StatusDenied {
		verdict = VerdictPass
	}
	result := &AdjudicationResult{CommitmentID: rec.CommitmentID, Verdict: verdict}
	if rec.DecisionCard != nil {
		result.DecisionCard = rec.DecisionCard
		result.Reason = rec.DecisionCard.Rationale
		result.RiskClass = rec.DecisionCard.RiskLevel
	}
	return result
}

// DeriveTier classifies how much oversight produced an approval, for the
// governance tier stamped onto the receipt: human review makes a manual
// tier, co-signatures a supervised one, anything else autonomous.
func DeriveTier(history []StageOutcome) executor.GovernanceTier {
	tier := executor.TierAutonomous
	for _, outcome := range history {
		switch outcome.Verdict {
		case VerdictRequireHumanReview:
			return executor.TierManual
		case VerdictRequireCoSignature:
			tier = executor.TierSupervised
		}
	}
	return tier
}

func declarationEventID(commitmentID string) string { return "decl:" + commitmentID }
func decisionEventID(commitmentID string) string    { return "decide:" + commitmentID }
