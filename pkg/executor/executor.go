// Package executor implements the gate's execution stage: once a
// commitment reaches StatusApproved, CommitmentExecutor drives it through
// Executing and Executed to Settled (or to Failed) and mints the bit-exact
// Receipt that closes the loop back to the ledger.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/contracts"
	"github.com/mapleaiorg/substrate/pkg/crypto"
	"github.com/mapleaiorg/substrate/pkg/observability"
	"github.com/mapleaiorg/substrate/pkg/proofgraph"
)

// LedgerTransitioner is the narrow slice of the commitment ledger the
// executor needs: moving a commitment through its post-approval lifecycle.
// Defined here rather than imported directly to avoid a dependency from
// executor back onto the ledger package.
type LedgerTransitioner interface {
	Transition(commitmentID string, from, to commitment.Status, at time.Time, actor string) error
	SetOutcome(commitmentID string, to commitment.Status, outcome string, at time.Time) error
}

// SettlementConfirmer is consulted between Executed and Settled. When nil,
// settlement follows execution automatically; when injected, an error
// leaves the commitment in Executed for a later confirmation attempt.
type SettlementConfirmer func(ctx context.Context, receipt *Receipt) error

// CommitmentExecutor is the fail-closed execution driver: it never invokes
// the underlying EffectExecutor except from StatusApproved, and every
// outcome — success or failure — is recorded both in the ledger and as a
// minted receipt.
type CommitmentExecutor struct {
	identity string
	ledger   LedgerTransitioner
	effects  EffectExecutor
	receipts ReceiptStore
	graph    *proofgraph.Graph
	confirm  SettlementConfirmer
	obs      *observability.Provider
	clock    func() time.Time

	mu       sync.RWMutex
	bindings map[string]string // commitmentID -> executor identity
}

// NewCommitmentExecutor wires a ledger transitioner, a pluggable effect
// driver, and a receipt store into an executor. identity is the executor's
// own WorldLine id, stamped as the origin of every Consequence it emits.
func NewCommitmentExecutor(identity string, ledger LedgerTransitioner, effects EffectExecutor, receipts ReceiptStore) *CommitmentExecutor {
	return &CommitmentExecutor{
		identity: identity,
		ledger:   ledger,
		effects:  effects,
		receipts: receipts,
		clock:    time.Now,
		bindings: make(map[string]string),
	}
}

// WithClock overrides the executor's clock for deterministic tests.
func (e *CommitmentExecutor) WithClock(clock func() time.Time) *CommitmentExecutor {
	e.clock = clock
	return e
}

// WithGraph attaches the provenance graph; when present, every successful
// execution publishes an effect node descending from the decision node.
func (e *CommitmentExecutor) WithGraph(g *proofgraph.Graph) *CommitmentExecutor {
	e.graph = g
	return e
}

// WithSettlementConfirmer injects an external settlement confirmation step.
func (e *CommitmentExecutor) WithSettlementConfirmer(c SettlementConfirmer) *CommitmentExecutor {
	e.confirm = c
	return e
}

// WithObservability routes execution spans and the execution-outcome
// counter through the given provider.
func (e *CommitmentExecutor) WithObservability(p *observability.Provider) *CommitmentExecutor {
	e.obs = p
	return e
}

// Identity returns the executor's WorldLine id.
func (e *CommitmentExecutor) Identity() string { return e.identity }

// ExecutorIdentityFor implements the router's consequence-origin check: it
// reports which executor identity is bound to a commitment this executor
// has run.
func (e *CommitmentExecutor) ExecutorIdentityFor(commitmentID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.bindings[commitmentID]
	return id, ok
}

// Execute drives a single approved commitment through execution. tier
// classifies how much human oversight the commitment received on its way
// here (derived by the gate from the stage history), and is stamped onto
// the receipt unchanged.
func (e *CommitmentExecutor) Execute(ctx context.Context, commitmentID string, declaration any, tier GovernanceTier) (*Receipt, error) {
	if e.obs == nil {
		return e.execute(ctx, commitmentID, declaration, tier)
	}
	ctx, finish := e.obs.TrackOperation(ctx, "executor.execute",
		observability.CommitmentOperation(e.identity, commitmentID, "execution", string(tier))...)
	receipt, err := e.execute(ctx, commitmentID, declaration, tier)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.obs.RecordExecution(ctx, outcome)
	finish(err)
	return receipt, err
}

func (e *CommitmentExecutor) execute(ctx context.Context, commitmentID string, declaration any, tier GovernanceTier) (*Receipt, error) {
	now := e.clock()

	if err := e.ledger.Transition(commitmentID, commitment.StatusApproved, commitment.StatusExecuting, now, "executor"); err != nil {
		return nil, fmt.Errorf("executor: cannot start execution: %w", err)
	}
	e.mu.Lock()
	e.bindings[commitmentID] = e.identity
	e.mu.Unlock()

	payload, err := e.effects.Execute(ctx, commitmentID, declaration)
	if err != nil {
		_ = e.ledger.SetOutcome(commitmentID, commitment.StatusFailed, err.Error(), e.clock())
		return nil, fmt.Errorf("executor: effect execution failed: %w", err)
	}

	receipt := &Receipt{
		ReceiptID:      "rcpt-" + uuid.New().String(),
		CommitmentID:   commitmentID,
		ConsequenceID:  "cq-" + uuid.New().String(),
		IssuedAt:       e.clock(),
		Summary:        payload.Summary,
		TestsPassed:    payload.TestsPassed,
		GovernanceTier: tier,
	}
	hash, err := HashReceipt(receipt)
	if err != nil {
		_ = e.ledger.SetOutcome(commitmentID, commitment.StatusFailed, "receipt hashing failed", e.clock())
		return nil, fmt.Errorf("executor: receipt hashing failed: %w", err)
	}
	receipt.ExecutionHash = hash

	if err := e.receipts.Store(ctx, receipt); err != nil {
		_ = e.ledger.SetOutcome(commitmentID, commitment.StatusFailed, "receipt persistence failed", e.clock())
		return nil, fmt.Errorf("executor: receipt store failed: %w", err)
	}

	if err := e.ledger.SetOutcome(commitmentID, commitment.StatusExecuted, "success", e.clock()); err != nil {
		return nil, fmt.Errorf("executor: outcome recording failed: %w", err)
	}
	e.publishEffectNode(receipt)

	if e.confirm != nil {
		if err := e.confirm(ctx, receipt); err != nil {
			// Settlement stays open; the commitment remains Executed until
			// a later confirmation succeeds.
			return receipt, nil
		}
	}
	if err := e.ledger.Transition(commitmentID, commitment.StatusExecuted, commitment.StatusSettled, e.clock(), "executor"); err != nil {
		return nil, fmt.Errorf("executor: settlement failed: %w", err)
	}

	return receipt, nil
}

// publishEffectNode records the execution in the provenance DAG as a child
// of the commitment's decision node.
func (e *CommitmentExecutor) publishEffectNode(receipt *Receipt) {
	if e.graph == nil {
		return
	}
	payload, err := proofgraph.EncodePayload(receipt)
	if err != nil {
		return
	}
	var parents []string
	if decision, ok := e.graph.ByEvent("decide:" + receipt.CommitmentID); ok {
		parents = append(parents, decision.NodeHash)
	}
	_, _ = e.graph.Insert(&proofgraph.Node{
		Kind:         proofgraph.NodeTypeEffect,
		Parents:      parents,
		Payload:      payload,
		Principal:    e.identity,
		Timestamp:    receipt.IssuedAt.UnixMilli(),
		EventID:      "exec:" + receipt.CommitmentID,
		WorldLine:    e.identity,
		CommitmentID: receipt.CommitmentID,
		StageClass:   "execution",
	})
}

// Consequence renders a receipt as the wire-level consequence record the
// observation surface ingests.
func (e *CommitmentExecutor) Consequence(receipt *Receipt, worldline string) *contracts.Consequence {
	return &contracts.Consequence{
		ConsequenceID: receipt.ConsequenceID,
		CommitmentID:  receipt.CommitmentID,
		ReceiptID:     receipt.ReceiptID,
		ExecutorID:    e.identity,
		WorldLine:     worldline,
		Summary:       receipt.Summary,
		ObservedAt:    receipt.IssuedAt,
	}
}

// HashReceipt computes a receipt's content-addressed execution hash over
// every field except ExecutionHash itself, via RFC 8785 canonical JSON.
func HashReceipt(r *Receipt) (string, error) {
	unhashed := *r
	unhashed.ExecutionHash = ""
	return crypto.HashJCS(unhashed)
}

// VerifyReceipt recomputes a receipt's execution hash and reports whether it
// matches the stored value — i.e. whether the receipt has been tampered
// with since it was minted.
func VerifyReceipt(r *Receipt) (bool, error) {
	hash, err := HashReceipt(r)
	if err != nil {
		return false, err
	}
	return hash == r.ExecutionHash, nil
}
